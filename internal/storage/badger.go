package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/store"
)

// BadgerStorage implements Storage on an embedded BadgerDB. Links are kept
// one per key under the links collection prefix, ordered by position.
// Badger locks its directory, so only one process can have it open.
type BadgerStorage struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewBadgerStorage opens the database at path. An empty path or ":memory:"
// opens an in-memory database.
func NewBadgerStorage(path string, logger logrus.FieldLogger) (*BadgerStorage, error) {
	var opts badger.Options
	if path == "" || path == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db at %s: %w", path, err)
	}
	logger.WithField("path", path).Debug("badger storage opened")

	return &BadgerStorage{
		db:  db,
		log: logger.WithField("component", "storage"),
	}, nil
}

// Close closes the database.
func (s *BadgerStorage) Close() error {
	if err := s.db.Close(); err != nil {
		s.log.WithError(err).Error("close badger db")
		return err
	}
	return nil
}

// linkPrefix is "links-storage:"; each link lives under prefix + id.
func linkPrefix() []byte {
	return []byte(store.LinksCollection + ":")
}

func linkKey(id string) []byte {
	return []byte(store.LinksCollection + ":" + id)
}

// topKey holds the highest position handed out so far.
var topKey = []byte(store.LinksCollection + "-top")

// badgerLink is the stored value of a link key. Higher positions come first.
type badgerLink struct {
	Position int64      `json:"position"`
	Link     model.Link `json:"link"`
}

// LoadLinks returns every link in display order.
func (s *BadgerStorage) LoadLinks(_ context.Context) ([]model.Link, error) {
	var records []badgerLink
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := linkPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec badgerLink
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decode link at %s: %w", item.Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Position > records[j].Position })
	links := make([]model.Link, 0, len(records))
	for _, rec := range records {
		links = append(links, rec.Link)
	}
	return links, nil
}

// InsertLinks stores links above every stored one, links[0] topmost. The
// write goes through a WriteBatch, so large imports are split into as many
// transactions as they need.
func (s *BadgerStorage) InsertLinks(_ context.Context, links []model.Link) error {
	if len(links) == 0 {
		return nil
	}

	var top int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(topKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			top, err = strconv.ParseInt(string(val), 10, 64)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("get top position: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i, link := range links {
		val, err := json.Marshal(badgerLink{Position: top + int64(len(links)-i), Link: link})
		if err != nil {
			return fmt.Errorf("encode link %s: %w", link.ID, err)
		}
		if err := wb.Set(linkKey(link.ID), val); err != nil {
			return fmt.Errorf("insert link %s: %w", link.ID, err)
		}
	}
	if err := wb.Set(topKey, []byte(strconv.FormatInt(top+int64(len(links)), 10))); err != nil {
		return fmt.Errorf("set top position: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("insert links: %w", err)
	}
	return nil
}

// UpdateLink overwrites the stored link with link.ID, keeping its position.
func (s *BadgerStorage) UpdateLink(_ context.Context, link model.Link) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(linkKey(link.ID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var rec badgerLink
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
			return err
		}
		rec.Link = link
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(linkKey(link.ID), val)
	})
	if err != nil {
		return fmt.Errorf("update link %s: %w", link.ID, err)
	}
	return nil
}

// DeleteLink removes the link with id.
func (s *BadgerStorage) DeleteLink(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(linkKey(id))
	})
	if err != nil {
		return fmt.Errorf("delete link %s: %w", id, err)
	}
	return nil
}

// ClearLinks removes every link through a WriteBatch.
func (s *BadgerStorage) ClearLinks(_ context.Context) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := linkPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("list link keys: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("clear links: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("clear links: %w", err)
	}
	return nil
}

// LoadTags returns the registered tags.
func (s *BadgerStorage) LoadTags(_ context.Context) ([]string, error) {
	tags := []string{}
	found, err := s.getJSON(store.TagsCollection, &tags)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	if !found {
		return []string{}, nil
	}
	return tags, nil
}

// AddTags merges tags into the stored registry.
func (s *BadgerStorage) AddTags(_ context.Context, tags []string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		stored := []string{}
		item, err := txn.Get([]byte(store.TagsCollection))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &stored) }); err != nil {
				return err
			}
		}

		seen := make(map[string]bool, len(stored))
		for _, t := range stored {
			seen[t] = true
		}
		for _, t := range tags {
			if !seen[t] {
				seen[t] = true
				stored = append(stored, t)
			}
		}
		val, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return txn.Set([]byte(store.TagsCollection), val)
	})
	if err != nil {
		return fmt.Errorf("add tags: %w", err)
	}
	return nil
}

// LoadReminder returns the stored reminder settings or the defaults.
func (s *BadgerStorage) LoadReminder(_ context.Context) (model.ReminderSettings, error) {
	settings := model.DefaultReminderSettings()
	if _, err := s.getJSON(store.ReminderCollection, &settings); err != nil {
		return model.ReminderSettings{}, fmt.Errorf("get reminder settings: %w", err)
	}
	return settings, nil
}

// SaveReminder stores the reminder settings.
func (s *BadgerStorage) SaveReminder(_ context.Context, settings model.ReminderSettings) error {
	if err := s.setJSON(store.ReminderCollection, settings); err != nil {
		return fmt.Errorf("save reminder settings: %w", err)
	}
	return nil
}

func (s *BadgerStorage) getJSON(key string, v any) (bool, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(val, v)
}

func (s *BadgerStorage) setJSON(key string, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
