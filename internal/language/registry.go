package language

import "fmt"

// Images maps each language family to its sandbox image.
type Images struct {
	Python  string
	GCC     string
	OpenJDK string
}

// Registry is the immutable lookup table of profiles.
type Registry struct {
	profiles map[ID]Profile
}

func NewRegistry(images Images) *Registry {
	r := &Registry{profiles: make(map[ID]Profile, len(All))}
	for _, id := range All {
		r.profiles[id] = profileFor(id, images)
	}
	return r
}

func profileFor(id ID, images Images) Profile {
	switch id {
	case Python:
		return Profile{
			ID:        Python,
			Image:     images.Python,
			Extension: ".py",
			Order:     UserFirst,
			RunCmd:    "python {src}",
		}
	case C:
		return Profile{
			ID:            C,
			Image:         images.GCC,
			Extension:     ".c",
			Order:         TemplateFirst,
			CompileCmd:    `sh -c "gcc -Ofast {src} -o {dir}/user_code"`,
			RunCmd:        "{dir}/user_code",
			Artifact:      "user_code",
			ArtifactLabel: "Binary",
		}
	case Java:
		return Profile{
			ID:            Java,
			Image:         images.OpenJDK,
			Extension:     ".java",
			Order:         TemplateFirst,
			CompileCmd:    "javac -g:none -O -J-Xms16m -J-Xmx32m {src}",
			RunCmd:        "java -Xms32m -Xmx64m -XX:+UseSerialGC -XX:+DisableExplicitGC -Djava.security.manager -cp {dir} Main",
			Artifact:      "Main.class",
			ArtifactLabel: "Class file",
		}
	}
	panic(fmt.Sprintf("language: no profile for %q", id))
}

// Lookup returns the profile for id or an error wrapping
// ErrUnsupportedLanguage.
func (r *Registry) Lookup(id string) (Profile, error) {
	p, ok := r.profiles[ID(id)]
	if !ok {
		return Profile{}, fmt.Errorf("language %q: %w", id, ErrUnsupportedLanguage)
	}
	return p, nil
}

// List returns every profile in the order of All.
func (r *Registry) List() []Profile {
	out := make([]Profile, 0, len(All))
	for _, id := range All {
		out = append(out, r.profiles[id])
	}
	return out
}
