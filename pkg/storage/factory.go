package storage

import (
	"fmt"
	"io"
)

type Config struct {
	Type       string `env:"TYPE"        envDefault:"memory"`
	BadgerPath string `env:"BADGER_PATH" envDefault:"./data/badger"`
}

// Open returns a store of T for the configured backend. The closer is nil
// for the in-memory backend.
func Open[T any](cfg Config, collection string) (Storage[T], io.Closer, error) {
	switch cfg.Type {
	case "memory", "":
		return NewInMemoryStorage[T](), nil, nil
	case "badger":
		db, err := OpenBadger(cfg.BadgerPath, false)
		if err != nil {
			return nil, nil, err
		}

		return NewBadgerStorage[T](db, collection), db, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
