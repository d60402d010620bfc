// Package store implements the on-disk backup catalog for one branch:
// creation, listing, pinning, deletion, restoration and retention-based
// eviction. All state lives in the backup files themselves; the store's
// in-memory bookkeeping can be rebuilt from a directory scan at any time.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"
	"go.uber.org/zap"

	"github.com/zephh/chronobind/internal/chrono"
	"github.com/zephh/chronobind/internal/errdefs"
	"github.com/zephh/chronobind/internal/manifest"
	"github.com/zephh/chronobind/internal/ports"
)

// Backup is one catalogued backup archive.
type Backup struct {
	ID        string
	Character chrono.Character
	CreatedAt time.Time
	Origin    chrono.Origin
	Pinned    bool
	Path      string
	SizeBytes int64

	// seq is the stable insertion order used to break eviction ties between
	// backups sharing a creation timestamp.
	seq uint64
}

// FileName returns the backup's file name.
func (b Backup) FileName() string {
	return filepath.Base(b.Path)
}

// Store manages the backups of a single branch. Mutating operations on the
// same character are serialized by a keyed lock; unrelated characters never
// contend.
type Store struct {
	branch chrono.Branch
	fs     ports.FileSystem
	codec  ports.Codec
	keep   int
	locks  *kmutex.Kmutex
	log    *zap.Logger

	mu      sync.Mutex
	seqs    map[string]uint64
	nextSeq uint64
	leases  map[string]int
}

// New creates a store for the given branch. keepLast bounds the number of
// unpinned backups kept per character; zero or negative disables eviction.
// The retention limit is explicit configuration so eviction is deterministic
// and testable in isolation.
func New(branch chrono.Branch, fs ports.FileSystem, codec ports.Codec, keepLast int, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		branch: branch,
		fs:     fs,
		codec:  codec,
		keep:   keepLast,
		locks:  kmutex.New(),
		log:    log,
		seqs:   make(map[string]uint64),
		leases: make(map[string]int),
	}
}

// Branch returns the branch this store manages.
func (s *Store) Branch() chrono.Branch { return s.branch }

// KeepLast returns the configured retention limit.
func (s *Store) KeepLast() int { return s.keep }

// Create snapshots the selection under the character's live tree into a new
// backup archive, registers it and evicts synchronously. The invariant
// "unpinned backups ≤ retention limit" holds immediately after every
// successful Create, never eventually.
func (s *Store) Create(char chrono.Character, sel chrono.Selection, origin chrono.Origin, pinned bool, progress ports.ProgressFunc) (*Backup, error) {
	key := char.Key()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	backupsDir := char.BackupsPath(s.branch)
	if err := s.fs.MkdirAll(backupsDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating backups dir: %v", errdefs.ErrIO, err)
	}

	now := time.Now()
	id := shortID()
	name := chrono.FormatBackupName(chrono.BackupName{
		Character: char.Name,
		Timestamp: now,
		ID:        id,
		Origin:    origin,
		Pinned:    pinned,
	})
	archivePath := filepath.Join(backupsDir, name)

	m := manifest.Backup{
		Account:   char.Account,
		Realm:     char.Realm,
		Character: char.Name,
		CreatedAt: now,
		Origin:    string(origin),
		Pinned:    pinned,
	}

	count, err := s.codec.Pack(char.ConfigPath(s.branch), sel.Paths, m, archivePath, progress)
	if err != nil {
		return nil, fmt.Errorf("packing backup: %w", err)
	}

	var size int64
	if info, err := s.fs.Stat(archivePath); err == nil {
		size = info.Size()
	}

	backup := &Backup{
		ID:        id,
		Character: char,
		CreatedAt: now,
		Origin:    origin,
		Pinned:    pinned,
		Path:      archivePath,
		SizeBytes: size,
		seq:       s.assignSeq(id),
	}

	s.log.Info("created backup",
		zap.String("character", char.Key()),
		zap.String("file", name),
		zap.Int("files", count),
		zap.Int64("bytes", size))

	if err := s.evictLocked(char); err != nil {
		return nil, err
	}
	return backup, nil
}

// List returns the character's backups, newest first. A missing backup
// directory yields an empty list.
func (s *Store) List(char chrono.Character) ([]Backup, error) {
	backups, err := s.scan(char)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return backups[i].seq > backups[j].seq
	})
	return backups, nil
}

// Pin marks a backup as exempt from eviction. Idempotent.
func (s *Store) Pin(id string) error { return s.setPinned(id, true) }

// Unpin clears a backup's pin flag. Idempotent.
func (s *Store) Unpin(id string) error { return s.setPinned(id, false) }

func (s *Store) setPinned(id string, pinned bool) error {
	b, err := s.locate(id)
	if err != nil {
		return err
	}

	key := b.Character.Key()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	b, err = s.find(b.Character, id)
	if err != nil {
		return err
	}
	if b.Pinned == pinned {
		return nil
	}

	newName := chrono.FormatBackupName(chrono.BackupName{
		Character: b.Character.Name,
		Timestamp: b.CreatedAt,
		ID:        b.ID,
		Origin:    b.Origin,
		Pinned:    pinned,
	})
	newPath := filepath.Join(filepath.Dir(b.Path), newName)
	if err := s.fs.Rename(b.Path, newPath); err != nil {
		return fmt.Errorf("%w: renaming backup: %v", errdefs.ErrIO, err)
	}

	s.log.Info("changed pin state",
		zap.String("character", key),
		zap.String("backup", b.ID),
		zap.Bool("pinned", pinned))
	return nil
}

// Delete removes a backup permanently. It fails with ErrNotFound when the
// backup does not exist and with ErrInUse when another operation currently
// holds a read lease on it (e.g. a running bundle export).
func (s *Store) Delete(id string) error {
	b, err := s.locate(id)
	if err != nil {
		return err
	}

	key := b.Character.Key()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	return s.deleteLocked(b.Character, id)
}

func (s *Store) deleteLocked(char chrono.Character, id string) error {
	b, err := s.find(char, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	inUse := s.leases[id] > 0
	s.mu.Unlock()
	if inUse {
		return fmt.Errorf("%w: backup %s is being read", errdefs.ErrInUse, id)
	}

	if err := s.fs.Remove(b.Path); err != nil {
		return fmt.Errorf("%w: deleting backup: %v", errdefs.ErrIO, err)
	}

	// Prune the character's backup directory once its last backup is gone so
	// the catalog stops listing the character.
	dir := filepath.Dir(b.Path)
	if entries, err := s.fs.ReadDir(dir); err == nil && len(entries) == 0 {
		_ = s.fs.RemoveAll(dir)
	}

	s.log.Info("deleted backup", zap.String("character", char.Key()), zap.String("backup", id))
	return nil
}

// Restore extracts a backup's files onto its character's live tree,
// overwriting in place, and returns the number of files applied. The backup
// archive itself is only read, never mutated.
func (s *Store) Restore(id string, progress ports.ProgressFunc) (int, error) {
	b, err := s.locate(id)
	if err != nil {
		return 0, err
	}

	key := b.Character.Key()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	b, err = s.find(b.Character, id)
	if err != nil {
		return 0, err
	}

	dest := b.Character.ConfigPath(s.branch)
	if err := s.fs.MkdirAll(dest, 0755); err != nil {
		return 0, fmt.Errorf("%w: creating live tree: %v", errdefs.ErrIO, err)
	}

	_, count, err := s.codec.Unpack(b.Path, dest, progress)
	if err != nil {
		return 0, fmt.Errorf("restoring backup %s: %w", id, err)
	}

	s.log.Info("restored backup",
		zap.String("character", key),
		zap.String("backup", id),
		zap.Int("files", count))
	return count, nil
}

// evictLocked enforces the retention limit for one character: among unpinned
// backups only, the oldest by (creation time, insertion order) are deleted
// until the count equals the limit. Pinned backups never count toward the
// limit and are never selected. Caller holds the character lock.
func (s *Store) evictLocked(char chrono.Character) error {
	if s.keep <= 0 {
		return nil
	}

	backups, err := s.scan(char)
	if err != nil {
		return err
	}

	var unpinned []Backup
	for _, b := range backups {
		if !b.Pinned {
			unpinned = append(unpinned, b)
		}
	}
	excess := len(unpinned) - s.keep
	if excess <= 0 {
		return nil
	}

	// Oldest first; ties in creation time break by stable insertion order.
	sort.SliceStable(unpinned, func(i, j int) bool {
		if !unpinned[i].CreatedAt.Equal(unpinned[j].CreatedAt) {
			return unpinned[i].CreatedAt.Before(unpinned[j].CreatedAt)
		}
		return unpinned[i].seq < unpinned[j].seq
	})

	for _, victim := range unpinned[:excess] {
		if err := s.deleteLocked(char, victim.ID); err != nil {
			return fmt.Errorf("evicting backup %s: %w", victim.ID, err)
		}
		s.log.Info("evicted old backup",
			zap.String("character", char.Key()),
			zap.String("backup", victim.ID),
			zap.Time("created_at", victim.CreatedAt))
	}
	return nil
}

// Characters lists the identities that have a backup directory in this
// branch's data tree.
func (s *Store) Characters() ([]chrono.Character, error) {
	root := filepath.Join(s.branch.DataDir(), chrono.CharactersDirName)

	var chars []chrono.Character
	accounts, err := s.readDirNames(root)
	if err != nil {
		return nil, nil // no data dir yet
	}
	for _, account := range accounts {
		realms, err := s.readDirNames(filepath.Join(root, account))
		if err != nil {
			continue
		}
		for _, realm := range realms {
			names, err := s.readDirNames(filepath.Join(root, account, realm))
			if err != nil {
				continue
			}
			for _, name := range names {
				chars = append(chars, chrono.Character{Account: account, Realm: realm, Name: name})
			}
		}
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i].Key() < chars[j].Key() })
	return chars, nil
}

// readDirNames returns the subdirectory names of dir.
func (s *Store) readDirNames(dir string) ([]string, error) {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// AcquireLease registers a reader of a backup, blocking Delete from removing
// it while held. Returns ErrNotFound for unknown ids.
func (s *Store) AcquireLease(id string) error {
	if _, err := s.locate(id); err != nil {
		return err
	}
	s.mu.Lock()
	s.leases[id]++
	s.mu.Unlock()
	return nil
}

// ReleaseLease drops a reader lease taken with AcquireLease.
func (s *Store) ReleaseLease(id string) {
	s.mu.Lock()
	if s.leases[id] > 0 {
		s.leases[id]--
	}
	if s.leases[id] == 0 {
		delete(s.leases, id)
	}
	s.mu.Unlock()
}

// ImportArchive re-creates a bundled backup under this store's addressing.
// It fails with ErrImportConflict when a backup with the same identity and
// timestamp already exists; the caller continues with the remaining items.
// Imports bypass eviction: they re-create backups that already survived
// retention on the source machine.
func (s *Store) ImportArchive(entry manifest.BundleEntry, contents io.Reader) (*Backup, error) {
	char := chrono.Character{Account: entry.Account, Realm: entry.Realm, Name: entry.Character}
	key := char.Key()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	existing, err := s.scan(char)
	if err != nil {
		return nil, err
	}

	// The conflict key is the wall-clock stamp baked into the backup file
	// name. Comparing instants would miss duplicates whenever the importing
	// machine's zone differs from the exporter's: the scan re-parses on-disk
	// names in local time, while the bundle entry carries the exporter's zone.
	stamp := entry.CreatedAt.Format(chrono.BackupTimeFormat)
	for _, b := range existing {
		if b.CreatedAt.Format(chrono.BackupTimeFormat) == stamp {
			return nil, fmt.Errorf("%w: %s at %s", errdefs.ErrImportConflict, key, stamp)
		}
	}

	backupsDir := char.BackupsPath(s.branch)
	if err := s.fs.MkdirAll(backupsDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating backups dir: %v", errdefs.ErrIO, err)
	}

	destPath := filepath.Join(backupsDir, entry.File)
	out, err := s.fs.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", errdefs.ErrIO, entry.File, err)
	}
	if _, err := io.Copy(out, contents); err != nil {
		_ = out.Close()
		_ = s.fs.Remove(destPath)
		return nil, fmt.Errorf("%w: writing %s: %v", errdefs.ErrIO, entry.File, err)
	}
	if err := out.Close(); err != nil {
		_ = s.fs.Remove(destPath)
		return nil, fmt.Errorf("%w: closing %s: %v", errdefs.ErrIO, entry.File, err)
	}

	name, ok := chrono.ParseBackupName(entry.File)
	if !ok {
		_ = s.fs.Remove(destPath)
		return nil, fmt.Errorf("%w: bundle entry file name %q", errdefs.ErrCorruptArchive, entry.File)
	}

	backup := &Backup{
		ID:        name.ID,
		Character: char,
		CreatedAt: name.Timestamp,
		Origin:    name.Origin,
		Pinned:    name.Pinned,
		Path:      destPath,
		SizeBytes: entry.SizeBytes,
		seq:       s.assignSeq(name.ID),
	}
	s.log.Info("imported backup", zap.String("character", key), zap.String("file", entry.File))
	return backup, nil
}

// scan reads a character's backup directory and decodes backup file names.
// Files not following the naming scheme are ignored.
func (s *Store) scan(char chrono.Character) ([]Backup, error) {
	dir := char.BackupsPath(s.branch)
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading backups dir: %v", errdefs.ErrIO, err)
	}

	var backups []Backup
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := chrono.ParseBackupName(entry.Name())
		if !ok || !strings.EqualFold(name.Character, char.Name) {
			continue
		}

		b := Backup{
			ID:        name.ID,
			Character: char,
			CreatedAt: name.Timestamp,
			Origin:    name.Origin,
			Pinned:    name.Pinned,
			Path:      filepath.Join(dir, entry.Name()),
		}
		if info, err := entry.Info(); err == nil {
			b.SizeBytes = info.Size()
		}
		backups = append(backups, b)
	}

	// Backups created by an earlier process get their insertion order from
	// the first scan, sorted oldest first so later registrations always
	// come after them.
	sort.SliceStable(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.Before(backups[j].CreatedAt)
		}
		return backups[i].FileName() < backups[j].FileName()
	})
	for i := range backups {
		backups[i].seq = s.assignSeq(backups[i].ID)
	}
	return backups, nil
}

// find returns one backup of a character by id.
func (s *Store) find(char chrono.Character, id string) (Backup, error) {
	backups, err := s.scan(char)
	if err != nil {
		return Backup{}, err
	}
	for _, b := range backups {
		if b.ID == id {
			return b, nil
		}
	}
	return Backup{}, fmt.Errorf("%w: backup %s", errdefs.ErrNotFound, id)
}

// locate finds a backup by id across all characters of the branch.
func (s *Store) locate(id string) (Backup, error) {
	chars, err := s.Characters()
	if err != nil {
		return Backup{}, err
	}
	for _, char := range chars {
		if b, err := s.find(char, id); err == nil {
			return b, nil
		}
	}
	return Backup{}, fmt.Errorf("%w: backup %s", errdefs.ErrNotFound, id)
}

// assignSeq returns the stable insertion sequence for a backup id, assigning
// the next one on first sight.
func (s *Store) assignSeq(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq, ok := s.seqs[id]; ok {
		return seq
	}
	s.nextSeq++
	s.seqs[id] = s.nextSeq
	return s.nextSeq
}

// shortID returns the 8-hex-char backup id segment.
func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
