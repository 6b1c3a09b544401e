package executor

import "slices"

// Language describes how source for one execution language is materialised
// and launched. Build and Run are argument vectors; they are never passed
// through a shell.
type Language struct {
	// Name is the identifier clients send, e.g. "python".
	Name string
	// Image is the container image used by container-based launchers.
	Image string
	// SourceFile is the entry-point filename written into the working directory.
	SourceFile string
	// Build is the compile step, empty for interpreted languages.
	Build []string
	// Run starts the program. It receives the request's stdin.
	Run []string
}

// Compiled reports whether the language needs a build step before running.
func (l Language) Compiled() bool {
	return len(l.Build) > 0
}

// Java compiles Main.java and runs the Main class.
var Java = Language{
	Name:       "java",
	Image:      "eclipse-temurin:21-jdk",
	SourceFile: "Main.java",
	Build:      []string{"javac", "Main.java"},
	Run:        []string{"java", "-Xss8m", "Main"},
}

// Python runs main.py with unbuffered output.
var Python = Language{
	Name:       "python",
	Image:      "python:3.12-alpine",
	SourceFile: "main.py",
	Run:        []string{"python3", "-u", "-B", "main.py"},
}

// Registry is the enumerated set of supported languages. It is built once at
// startup and read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	languages map[string]Language
	order     []string
}

// NewRegistry creates a registry holding the given languages.
// A later language with the same name replaces an earlier one.
func NewRegistry(langs ...Language) *Registry {
	r := &Registry{languages: make(map[string]Language, len(langs))}
	for _, l := range langs {
		if _, ok := r.languages[l.Name]; !ok {
			r.order = append(r.order, l.Name)
		}
		r.languages[l.Name] = l
	}
	return r
}

// DefaultRegistry returns the languages supported out of the box.
func DefaultRegistry() *Registry {
	return NewRegistry(Java, Python)
}

// Get returns the language with the given name.
func (r *Registry) Get(name string) (Language, bool) {
	l, ok := r.languages[name]
	return l, ok
}

// Supports reports whether name is in the enumerated set.
func (r *Registry) Supports(name string) bool {
	_, ok := r.languages[name]
	return ok
}

// Languages returns all languages in registration order.
func (r *Registry) Languages() []Language {
	out := make([]Language, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.languages[name])
	}
	return out
}

// Images returns the distinct container images needed by the registry.
func (r *Registry) Images() []string {
	var images []string
	for _, l := range r.Languages() {
		if l.Image != "" && !slices.Contains(images, l.Image) {
			images = append(images, l.Image)
		}
	}
	return images
}
