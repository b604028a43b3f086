package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "newsletterbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.recipients.json (snapshot, replaced via tmp + rename on every change)
//   - <prefix>.runs.jsonl      (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	recipientsPath string
	recipients     map[int64]Recipient

	runsFile *os.File
	runs     []RunRecord
	nextRun  int64
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	recipientsPath := prefix + ".recipients.json"
	runsPath := prefix + ".runs.jsonl"

	recipients := map[int64]Recipient{}
	if err := loadRecipients(recipientsPath, recipients); err != nil {
		return nil, err
	}
	runs, err := replayRuns(runsPath, log)
	if err != nil {
		return nil, err
	}
	var next int64
	for _, r := range runs {
		if r.ID > next {
			next = r.ID
		}
	}

	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:            log,
		recipientsPath: recipientsPath,
		recipients:     recipients,
		runsFile:       rf,
		runs:           runs,
		nextRun:        next,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return nil
	}
	err := s.runsFile.Close()
	s.runsFile = nil
	return err
}

func (s *fileStore) EnrollRecipient(ctx context.Context, r Recipient) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.recipients[r.ID]
	next := prev
	if existed {
		next.Username = r.Username
		next.DisplayName = r.DisplayName
	} else {
		next = r
		if next.EnrolledAt.IsZero() {
			next.EnrolledAt = time.Now()
		}
		// Match the millisecond precision of the sqlite backend.
		next.EnrolledAt = time.UnixMilli(next.EnrolledAt.UnixMilli())
	}
	next.Active = true

	s.recipients[r.ID] = next
	if err := s.saveRecipientsLocked(); err != nil {
		if existed {
			s.recipients[r.ID] = prev
		} else {
			delete(s.recipients, r.ID)
		}
		return false, err
	}
	return existed, nil
}

func (s *fileStore) SetRecipientActive(ctx context.Context, id int64, active bool) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.recipients[id]
	if !ok {
		return ErrNotFound
	}
	if prev.Active == active {
		return nil
	}
	next := prev
	next.Active = active
	s.recipients[id] = next
	if err := s.saveRecipientsLocked(); err != nil {
		s.recipients[id] = prev
		return err
	}
	return nil
}

func (s *fileStore) Recipient(ctx context.Context, id int64) (Recipient, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[id]
	if !ok {
		return Recipient{}, ErrNotFound
	}
	return r, nil
}

func (s *fileStore) ActiveRecipients(ctx context.Context) ([]Recipient, error) {
	_ = ctx
	s.mu.Lock()
	out := make([]Recipient, 0, len(s.recipients))
	for _, r := range s.recipients {
		if r.Active {
			out = append(out, r)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].EnrolledAt.Before(out[j].EnrolledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fileStore) CountActiveRecipients(ctx context.Context) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.recipients {
		if r.Active {
			n++
		}
	}
	return n, nil
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return errors.New("run journal closed")
	}
	if r.RunAt.IsZero() {
		r.RunAt = time.Now()
	}
	r.RunAt = time.UnixMilli(r.RunAt.UnixMilli())
	r.ID = s.nextRun + 1

	if err := json.NewEncoder(s.runsFile).Encode(r); err != nil {
		return err
	}
	s.nextRun = r.ID
	s.runs = append(s.runs, r)
	return nil
}

func (s *fileStore) CountRuns(ctx context.Context, f RunFilter) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.runs {
		if f.match(r) {
			n++
		}
	}
	return n, nil
}

func (s *fileStore) LastRun(ctx context.Context) (RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return RunRecord{}, ErrNotFound
	}
	last := s.runs[0]
	for _, r := range s.runs[1:] {
		if !r.RunAt.Before(last.RunAt) {
			last = r
		}
	}
	return last, nil
}

func (s *fileStore) saveRecipientsLocked() error {
	list := make([]Recipient, 0, len(s.recipients))
	for _, r := range s.recipients {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	tmp := s.recipientsPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(list); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.recipientsPath)
}

func loadRecipients(path string, out map[int64]Recipient) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	var list []Recipient
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	for _, r := range list {
		out[r.ID] = r
	}
	return nil
}

// replayRuns reads the run journal. A torn trailing line (crash mid-write) is skipped.
func replayRuns(path string, log logx.Logger) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r RunRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			log.Warn("skipping corrupt run record", logx.String("path", path), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
