package vocab

import (
	"errors"
	"fmt"
	"log"
	"os"
)

// Source is one strategy for locating a vocabulary. Sources are tried in
// order: the first one that loads wins. Load returns an error when the
// source cannot provide a vocabulary (missing file, malformed contents);
// the resolver logs it and moves on.
type Source struct {
	Name string
	Load func() (*Vocabulary, error)
}

// ErrNoVocabulary is returned by Resolve when every source fails.
var ErrNoVocabulary = errors.New("vocab: no source provided a vocabulary")

// Resolve walks sources in order and returns the first vocabulary that
// loads along with the name of the source that produced it. Failed sources
// are logged and skipped.
func Resolve(sources []Source) (*Vocabulary, string, error) {
	for _, src := range sources {
		v, err := src.Load()
		if err != nil {
			if !os.IsNotExist(errors.Unwrap(err)) {
				log.Printf("vocab: source %s unavailable: %v", src.Name, err)
			}
			continue
		}
		if v == nil || v.Len() == 0 {
			continue
		}
		return v, src.Name, nil
	}
	return nil, "", ErrNoVocabulary
}

// FileSource is a Source that loads a vocabulary JSON file from path.
func FileSource(name, path string) Source {
	return Source{
		Name: name,
		Load: func() (*Vocabulary, error) {
			return LoadFile(path)
		},
	}
}

// BuiltinSource is a Source that always succeeds with the built-in
// reference vocabulary capped at n labels. Place it last: anything it
// serves predates training.
func BuiltinSource(n int) Source {
	return Source{
		Name: fmt.Sprintf("builtin[%d]", n),
		Load: func() (*Vocabulary, error) {
			return Builtin(n), nil
		},
	}
}
