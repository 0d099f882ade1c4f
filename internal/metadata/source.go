package metadata

import (
	"time"

	"github.com/starford/dagaz/internal/parser"
	"github.com/starford/dagaz/internal/storage"
)

// Header is the parsed structured header of a document, plus the derived
// title and the tag/context markers collected from header and body.
type Header struct {
	Fields   map[string]interface{}
	Title    string
	Tags     []string
	Contexts []string
}

// FileStat carries the file metadata the engine needs for note records.
type FileStat struct {
	ModTime time.Time
}

// Source provides documents to the indexing engine. Implementations must be
// safe for concurrent use; the engine may read single documents outside its
// event loop.
type Source interface {
	// List returns the paths of all documents in the collection.
	List() ([]string, error)
	// Header reads and parses the document at path.
	Header(path string) (*Header, error)
	// Stat returns file metadata for the document at path.
	Stat(path string) (FileStat, error)
}

// VaultSource adapts a storage.Provider plus the frontmatter parser into a
// Source.
type VaultSource struct {
	store storage.Provider
}

// NewVaultSource creates a Source backed by the given vault storage.
func NewVaultSource(store storage.Provider) *VaultSource {
	return &VaultSource{store: store}
}

// List returns every document path in the vault.
func (v *VaultSource) List() ([]string, error) {
	infos, err := v.store.List("")
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(infos))
	for i, info := range infos {
		paths[i] = info.Path
	}
	return paths, nil
}

// Header reads the document and extracts its header fields.
func (v *VaultSource) Header(path string) (*Header, error) {
	data, err := v.store.Read(path)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	return &Header{
		Fields:   res.Frontmatter,
		Title:    res.Title,
		Tags:     res.Tags,
		Contexts: res.Contexts,
	}, nil
}

// Stat returns the document's modification time.
func (v *VaultSource) Stat(path string) (FileStat, error) {
	info, err := v.store.Stat(path)
	if err != nil {
		return FileStat{}, err
	}
	return FileStat{ModTime: info.UpdatedAt}, nil
}
