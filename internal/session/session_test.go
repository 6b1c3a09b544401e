package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connIDs(ps []Participant) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ConnID)
	}
	return ids
}

func TestDirectory_JoinSnapshotIncludesJoiner(t *testing.T) {
	d := NewDirectory("java")

	snap, left := d.Join("c1", "room", "ada")
	assert.Nil(t, left)
	assert.Equal(t, "room", snap.SessionID)
	assert.Equal(t, []string{"c1"}, connIDs(snap.Members))
	assert.Equal(t, "java", snap.Language)

	snap, _ = d.Join("c2", "room", "bob")
	assert.Equal(t, []string{"c1", "c2"}, connIDs(snap.Members))

	// Duplicate names are fine; identity is the connection.
	snap, _ = d.Join("c3", "room", "ada")
	assert.Equal(t, []string{"c1", "c2", "c3"}, connIDs(snap.Members))
	assert.Equal(t, "ada", snap.Members[2].DisplayName)
}

func TestDirectory_LanguageDefinedFromFirstJoin(t *testing.T) {
	d := NewDirectory("java")

	_, ok := d.Language("room")
	assert.False(t, ok)

	d.Join("c1", "room", "ada")
	lang, ok := d.Language("room")
	assert.True(t, ok)
	assert.Equal(t, "java", lang)

	assert.True(t, d.SetLanguage("room", "python"))
	d.Join("c2", "room", "bob")
	lang, _ = d.Language("room")
	assert.Equal(t, "python", lang, "later joiners see the current language")

	assert.False(t, d.SetLanguage("nowhere", "python"))
}

func TestDirectory_Leave(t *testing.T) {
	d := NewDirectory("java")
	d.Join("c1", "room", "ada")
	d.Join("c2", "room", "bob")

	dep := d.Leave("c1")
	require.NotNil(t, dep)
	assert.Equal(t, "room", dep.SessionID)
	assert.Equal(t, Participant{ConnID: "c1", DisplayName: "ada"}, dep.Participant)
	assert.Equal(t, []string{"c2"}, connIDs(dep.Remaining))

	assert.Nil(t, d.Leave("c1"), "second leave is a no-op")
	assert.Nil(t, d.Leave("unknown"))

	_, ok := d.SessionOf("c1")
	assert.False(t, ok)
}

func TestDirectory_EmptySessionIsDiscarded(t *testing.T) {
	d := NewDirectory("java")
	d.Join("c1", "room", "ada")
	d.SetLanguage("room", "python")

	dep := d.Leave("c1")
	require.NotNil(t, dep)
	assert.Empty(t, dep.Remaining)
	assert.Equal(t, 0, d.Len())
	assert.Nil(t, d.Members("room"))

	snap, _ := d.Join("c2", "room", "bob")
	assert.Equal(t, "java", snap.Language, "a recreated session starts from the default")
}

func TestDirectory_JoinOtherSessionLeavesFirst(t *testing.T) {
	d := NewDirectory("java")
	d.Join("c1", "a", "ada")
	d.Join("c2", "a", "bob")

	snap, left := d.Join("c1", "b", "ada")
	require.NotNil(t, left)
	assert.Equal(t, "a", left.SessionID)
	assert.Equal(t, []string{"c2"}, connIDs(left.Remaining))

	assert.Equal(t, []string{"c1"}, connIDs(snap.Members))
	id, _ := d.SessionOf("c1")
	assert.Equal(t, "b", id)
	assert.Equal(t, []string{"c2"}, connIDs(d.Members("a")))
}

func TestDirectory_RejoinSameSessionRenames(t *testing.T) {
	d := NewDirectory("java")
	d.Join("c1", "room", "ada")
	d.Join("c2", "room", "bob")

	snap, left := d.Join("c1", "room", "lovelace")
	assert.Nil(t, left)
	assert.Equal(t, []string{"c1", "c2"}, connIDs(snap.Members))
	assert.Equal(t, "lovelace", snap.Members[0].DisplayName)

	assert.Equal(t, "lovelace", d.Members("room")[0].DisplayName)
}

func TestDirectory_SnapshotsAreCopies(t *testing.T) {
	d := NewDirectory("java")
	snap, _ := d.Join("c1", "room", "ada")
	snap.Members[0].DisplayName = "mallory"

	members := d.Members("room")
	assert.Equal(t, "ada", members[0].DisplayName)

	got, ok := d.Snapshot("room")
	assert.True(t, ok)
	assert.Equal(t, "ada", got.Members[0].DisplayName)

	_, ok = d.Snapshot("missing")
	assert.False(t, ok)
}

func TestDirectory_SessionsAreIndependent(t *testing.T) {
	d := NewDirectory("java")
	d.Join("c1", "a", "ada")
	d.Join("c2", "b", "bob")

	d.SetLanguage("a", "python")
	la, _ := d.Language("a")
	lb, _ := d.Language("b")
	assert.Equal(t, "python", la)
	assert.Equal(t, "java", lb)
	assert.Equal(t, 2, d.Len())

	d.Leave("c1")
	assert.Equal(t, []string{"c2"}, connIDs(d.Members("b")))
}
