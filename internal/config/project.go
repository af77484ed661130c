package config

import (
	"os"
	"path/filepath"

	"github.com/antigravity-dev/prism/internal/prismerr"
	"gopkg.in/yaml.v3"
)

// Project is a workspace's `.prism/project.yaml`: name, stack tags,
// description, and the board task map (spec.md §3 "Project" entity).
type Project struct {
	Name        string            `yaml:"name"`
	Stack       []string          `yaml:"stack,omitempty"`
	Description string            `yaml:"description,omitempty"`
	BoardTaskMap map[string]string `yaml:"flux_task_map,omitempty"`

	// Override is a per-project slice of global config (embedding, ranker
	// weights, injector budgets, board URL); a nil section inherits the
	// global section, a non-nil one replaces it wholesale (Merge below).
	Override ProjectOverride `yaml:"override,omitempty"`

	path string
}

// ProjectOverride holds the subset of Config a project may locally override.
type ProjectOverride struct {
	Embedding *EmbeddingConfig `yaml:"embedding,omitempty"`
	Ranker    *RankerConfig    `yaml:"ranker,omitempty"`
	Injector  *InjectorConfig  `yaml:"injector,omitempty"`
	Board     *BoardConfig     `yaml:"board,omitempty"`
}

// ProjectPath returns <projectRoot>/.prism/project.yaml.
func ProjectPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".prism", "project.yaml")
}

// LoadProject reads a project's .prism/project.yaml. A missing file returns
// a Project with only Name defaulted from the directory basename — PRISM
// tolerates an uninitialized project directory rather than failing.
func LoadProject(projectRoot string) (*Project, error) {
	path := ProjectPath(projectRoot)
	p := &Project{
		Name:         filepath.Base(projectRoot),
		BoardTaskMap: make(map[string]string),
		path:         path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, prismerr.Wrap(prismerr.KindInvalidInput, err, "read project config %s", path)
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, prismerr.Wrap(prismerr.KindInvalidInput, err, "parse project config %s", path)
	}
	p.path = path
	if p.BoardTaskMap == nil {
		p.BoardTaskMap = make(map[string]string)
	}
	return p, nil
}

// Save writes the project config back to its .prism/project.yaml, via
// write-temp-then-rename so a concurrent reader never observes a partial
// file (same discipline as the Skill Store, spec.md §4.1).
func (p *Project) Save() error {
	path := p.path
	if path == "" {
		return prismerr.InvariantViolation(nil, "project has no associated path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "create .prism directory")
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "marshal project config")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "write temp project config")
	}
	if err := os.Rename(tmp, path); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "rename temp project config into place")
	}
	return nil
}

// Merge produces the effective Config for this project: the global cfg with
// any non-nil ProjectOverride fields applied on top. Secrets already
// resolved onto the global Config (via ResolveSecrets) are preserved since
// overrides never carry secret fields populated from disk.
func (p *Project) Merge(global Config) Config {
	effective := global
	if p.Override.Embedding != nil {
		apiKey := effective.Embedding.GenAIAPIKey
		effective.Embedding = *p.Override.Embedding
		effective.Embedding.GenAIAPIKey = apiKey
	}
	if p.Override.Ranker != nil {
		effective.Ranker = *p.Override.Ranker
	}
	if p.Override.Injector != nil {
		effective.Injector = *p.Override.Injector
	}
	if p.Override.Board != nil {
		token := effective.Board.Token
		effective.Board = *p.Override.Board
		effective.Board.Token = token
	}
	return effective
}
