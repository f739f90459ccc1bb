// Package bond keeps security records of bonded peers outside the process.
package bond

import (
	"io/ioutil"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	ble "github.com/rigado/blesmp"
	"github.com/rigado/blesmp/linux/hci/smp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type bondFile struct {
	LastDIV uint16                 `json:"lastDiv"`
	Records map[string]*smp.Record `json:"records"`
}

// FileStore is a smp.SecurityDB kept in a JSON file. The file is read and
// written on every call, so several processes may share it as long as
// they don't pair at the same time.
type FileStore struct {
	filename string
	lock     sync.RWMutex
}

func NewFileStore(filename string) *FileStore {
	return &FileStore{filename: filename}
}

func (s *FileStore) DIV(peer ble.Addr) (uint16, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	f, err := s.load()
	if err != nil {
		return 0, err
	}

	r := f.record(peer)
	if r.DIV != 0 {
		return r.DIV, nil
	}
	f.LastDIV++
	if f.LastDIV == 0 {
		f.LastDIV++
	}
	r.DIV = f.LastDIV

	return r.DIV, s.store(f)
}

func (s *FileStore) SaveKey(peer ble.Addr, key smp.Key, bonding bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	f.record(peer).Apply(key, bonding)
	return s.store(f)
}

func (s *FileStore) Find(peer ble.Addr) (*smp.Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	r, ok := f.Records[peer.String()]
	if !ok {
		return nil, errors.Wrapf(smp.ErrRecordNotFound, "%v", peer)
	}
	return r, nil
}

func (s *FileStore) Delete(peer ble.Addr) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := f.Records[peer.String()]; !ok {
		return nil
	}
	delete(f.Records, peer.String())
	return s.store(f)
}

// Records returns every record in the file.
func (s *FileStore) Records() ([]*smp.Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]*smp.Record, 0, len(f.Records))
	for _, r := range f.Records {
		out = append(out, r)
	}
	return out, nil
}

func (f *bondFile) record(peer ble.Addr) *smp.Record {
	r, ok := f.Records[peer.String()]
	if !ok {
		r = &smp.Record{Address: peer.String(), Keys: make(map[smp.KeyKind]smp.Key)}
		f.Records[peer.String()] = r
	}
	return r
}

func (s *FileStore) load() (*bondFile, error) {
	f := &bondFile{}

	in, err := ioutil.ReadFile(s.filename)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrap(err, "failed to read bond file")
	case len(in) > 0:
		if err := json.Unmarshal(in, f); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal bond file")
		}
	}

	if f.Records == nil {
		f.Records = make(map[string]*smp.Record)
	}
	return f, nil
}

func (s *FileStore) store(f *bondFile) error {
	out, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal bonds")
	}

	tmp := s.filename + ".tmp"
	if err := ioutil.WriteFile(tmp, out, 0600); err != nil {
		return errors.Wrap(err, "failed to write bond file")
	}
	return errors.Wrap(os.Rename(tmp, s.filename), "failed to replace bond file")
}
