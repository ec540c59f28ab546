package streams

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/config"
	"github.com/consometers/sge-tiers-proxy/internal/metadata"
	"github.com/consometers/sge-tiers-proxy/internal/metrics"
)

// ParseFiles turns the extracted data files of one inbox archive into
// records.
type ParseFiles func(paths []string, logger *logrus.Logger) ([]metadata.MetadataRecord, error)

type dispatchRule struct {
	pattern *regexp.Regexp
	parse   ParseFiles
}

// dispatchTable routes inbox files to parsers by basename, consulted
// in order.
var dispatchTable = []dispatchRule{
	{regexp.MustCompile(`^ENEDIS_R171_.+\.zip$`), singleFile(ParseR171)},
	{regexp.MustCompile(`^ERDF_R151_.+\.zip$`), singleFile(ParseR151)},
	{regexp.MustCompile(`^ERDF_R50_.+\.zip$`), eachFile(ParseR50)},
	{regexp.MustCompile(`^ENEDIS_.+_R4Q_CDC_.+\.zip$`), eachFile(ParseR4x)},
	{regexp.MustCompile(`^Enedis_SGE_HDM.+\.csv$`), singleFile(ParseHdm)},
}

var svcPattern = regexp.MustCompile(`.*_svc\.xml$`)

func singleFile(parse func(path string, logger *logrus.Logger) ([]metadata.MetadataRecord, error)) ParseFiles {
	return func(paths []string, logger *logrus.Logger) ([]metadata.MetadataRecord, error) {
		if len(paths) != 1 {
			return nil, fmt.Errorf("expected a single data file, got %d", len(paths))
		}
		return parse(paths[0], logger)
	}
}

func eachFile(parse func(path string, logger *logrus.Logger) ([]metadata.MetadataRecord, error)) ParseFiles {
	return func(paths []string, logger *logrus.Logger) ([]metadata.MetadataRecord, error) {
		var records []metadata.MetadataRecord
		for _, path := range paths {
			fileRecords, err := parse(path, logger)
			if err != nil {
				return nil, err
			}
			records = append(records, fileRecords...)
		}
		return records, nil
	}
}

// StreamsFiles walks the encrypted inbox, decrypts and unpacks each
// file in a scoped temporary directory, dispatches the contents to the
// right parser and moves the original to the archive or, on any
// failure, to quarantine.
type StreamsFiles struct {
	inboxDir        string
	archiveDir      string
	errorsDir       string
	keys            []config.AesKey
	publishArchives bool
	logger          *logrus.Logger
}

// NewStreamsFiles creates a new StreamsFiles instance. In
// publishArchives mode files are read back from the archive and never
// moved, for replaying already ingested data.
func NewStreamsFiles(cfg *config.StreamsConfig, publishArchives bool, logger *logrus.Logger) *StreamsFiles {
	return &StreamsFiles{
		inboxDir:        cfg.InboxDir,
		archiveDir:      cfg.ArchiveDir,
		errorsDir:       cfg.ErrorsDir,
		keys:            cfg.AesKeys,
		publishArchives: publishArchives,
		logger:          logger,
	}
}

// Glob lists the files of the source directory, recursively.
func (s *StreamsFiles) Glob() ([]string, error) {
	root := s.inboxDir
	if s.publishArchives {
		root = s.archiveDir
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return files, nil
}

// Open decrypts an inbox file into a temporary directory, unpacking it
// when the plaintext is a zip archive, and returns the extracted data
// files with a cleanup function that always removes the directory.
func (s *StreamsFiles) Open(path string) (files []string, cleanup func(), err error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	plaintext, err := decryptWithRing(ciphertext, s.keys)
	if err != nil {
		return nil, nil, err
	}

	tempDir, err := os.MkdirTemp("", "streams-")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup = func() { os.RemoveAll(tempDir) }

	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	name := filepath.Base(path)
	tempFile := filepath.Join(tempDir, name)
	if err = os.WriteFile(tempFile, plaintext, 0o600); err != nil {
		return nil, nil, fmt.Errorf("failed to write plaintext: %w", err)
	}

	if strings.HasSuffix(name, ".zip") {
		if err = unzip(tempFile, tempDir); err != nil {
			err = fmt.Errorf("%w: %v", ErrCorruptedFile, err)
			return nil, nil, err
		}
		if err = os.Remove(tempFile); err != nil {
			return nil, nil, err
		}
	}

	err = filepath.WalkDir(tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return files, cleanup, nil
}

func unzip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, file := range reader.File {
		dest := filepath.Join(destDir, file.Name)
		if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", file.Name)
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o700); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
			return err
		}
		in, err := file.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			in.Close()
			return err
		}
		_, err = io.Copy(out, in)
		in.Close()
		out.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *StreamsFiles) move(path, destRoot string) error {
	if s.publishArchives {
		return nil
	}
	dest := filepath.Join(destRoot, time.Now().Format("2006-01-02"), filepath.Base(path))
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}
	return os.Rename(path, dest)
}

// Archive moves a fully processed file under archive/<today>/.
func (s *StreamsFiles) Archive(path string) error {
	return s.move(path, s.archiveDir)
}

// Quarantine moves a failed file under errors/<today>/.
func (s *StreamsFiles) Quarantine(path string) error {
	return s.move(path, s.errorsDir)
}

// ProcessAll ingests every file of the source directory and returns
// the records of the files that parsed cleanly. A file either yields
// all of its records and is archived, or yields none and is
// quarantined; nothing is dropped silently.
func (s *StreamsFiles) ProcessAll() ([]metadata.MetadataRecord, error) {
	paths, err := s.Glob()
	if err != nil {
		return nil, err
	}

	var records []metadata.MetadataRecord
	for _, path := range paths {
		name := filepath.Base(path)

		if svcPattern.MatchString(name) {
			// transfer companion metadata, nothing to publish
			if err := s.Archive(path); err != nil {
				return nil, err
			}
			continue
		}

		rule := s.matchRule(name)
		if rule == nil {
			s.logger.WithField("file", name).Error("No parser matches inbox file")
			metrics.StreamFiles.WithLabelValues("ignored").Inc()
			if err := s.Archive(path); err != nil {
				return nil, err
			}
			continue
		}

		fileRecords, err := s.processOne(path, rule)
		if err != nil {
			s.logger.WithError(err).WithField("file", name).Error("Unable to parse data file")
			metrics.StreamFiles.WithLabelValues("quarantined").Inc()
			if qerr := s.Quarantine(path); qerr != nil {
				return nil, qerr
			}
			continue
		}

		records = append(records, fileRecords...)
		metrics.StreamFiles.WithLabelValues("archived").Inc()
		metrics.StreamRecords.Add(float64(len(fileRecords)))
		if err := s.Archive(path); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (s *StreamsFiles) matchRule(name string) *dispatchRule {
	for i := range dispatchTable {
		if dispatchTable[i].pattern.MatchString(name) {
			return &dispatchTable[i]
		}
	}
	return nil
}

func (s *StreamsFiles) processOne(path string, rule *dispatchRule) ([]metadata.MetadataRecord, error) {
	files, cleanup, err := s.Open(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return rule.parse(files, s.logger)
}

// Watch blocks on inbox filesystem events and invokes fn after new
// files settle. Used by the publisher daemon mode.
func (s *StreamsFiles) Watch(ctx context.Context, settle time.Duration, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := s.watchTree(watcher, s.inboxDir); err != nil {
		return err
	}

	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// fsnotify watches are not recursive; transfers dropping
			// files in fresh subdirectories need a watch of their own
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := s.watchTree(watcher, event.Name); err != nil {
						s.logger.WithError(err).WithField("dir", event.Name).Error("Failed to watch inbox subdirectory")
					}
				}
			}
			// wait for the transfer to finish before scanning
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(settle, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.WithError(err).Error("Inbox watcher error")
		case <-pending:
			fn()
		}
	}
}

// watchTree registers dir and every directory below it, matching the
// recursive walk of Glob.
func (s *StreamsFiles) watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
