package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/simple-beacon/beacon-go/pkg/model"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrUnsupportedVersion is returned by Load for files written by a newer format.
var ErrUnsupportedVersion = errors.New("unsupported state version")

// NodeState contains the runtime state of a beacon node.
type NodeState struct {
	// Version is the state file format version.
	Version int `cbor:"1,keyasint"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `cbor:"2,keyasint"`

	// UUID is the node's device UUID, kept stable across restarts.
	UUID uuid.UUID `cbor:"3,keyasint"`

	// UnicastAddress is the primary element address. Zero means unprovisioned.
	UnicastAddress uint16 `cbor:"4,keyasint,omitempty"`

	// Models contains the configuration of each registered model.
	Models []ModelState `cbor:"5,keyasint,omitempty"`

	// Beacon is the last value of the beacon flag.
	Beacon bool `cbor:"6,keyasint,omitempty"`
}

// ModelState is the persisted configuration of one model.
type ModelState struct {
	ElementIndex     uint16   `cbor:"1,keyasint"`
	CompanyID        uint16   `cbor:"2,keyasint"`
	ModelID          uint16   `cbor:"3,keyasint"`
	PublishAddress   uint16   `cbor:"4,keyasint,omitempty"`
	PublishAppKey    uint16   `cbor:"5,keyasint,omitempty"`
	PublishTTL       uint8    `cbor:"6,keyasint,omitempty"`
	AppKeys          []uint16 `cbor:"7,keyasint,omitempty"`
	Subscriptions    []uint16 `cbor:"8,keyasint,omitempty"`
	SubscriptionSize int      `cbor:"9,keyasint,omitempty"`
}

// FromConfig fills the node configuration part of the state.
func (s *NodeState) FromConfig(cfg model.Config) {
	s.UnicastAddress = uint16(cfg.UnicastAddress)
	s.Models = s.Models[:0]
	for _, mc := range cfg.Models {
		ms := ModelState{
			ElementIndex:     mc.ElementIndex,
			CompanyID:        mc.ID.CompanyID,
			ModelID:          mc.ID.ModelID,
			PublishAddress:   uint16(mc.Publication.Address),
			PublishAppKey:    mc.Publication.AppKeyIndex,
			PublishTTL:       mc.Publication.TTL,
			AppKeys:          mc.AppKeys,
			SubscriptionSize: mc.SubscriptionSize,
		}
		for _, a := range mc.Subscriptions {
			ms.Subscriptions = append(ms.Subscriptions, uint16(a))
		}
		s.Models = append(s.Models, ms)
	}
}

// Config returns the node configuration held in the state.
func (s *NodeState) Config() model.Config {
	cfg := model.Config{UnicastAddress: model.Address(s.UnicastAddress)}
	for _, ms := range s.Models {
		mc := model.ModelConfig{
			ElementIndex: ms.ElementIndex,
			ID:           model.ID{CompanyID: ms.CompanyID, ModelID: ms.ModelID},
			Publication: model.Publication{
				Address:     model.Address(ms.PublishAddress),
				AppKeyIndex: ms.PublishAppKey,
				TTL:         ms.PublishTTL,
			},
			AppKeys:          ms.AppKeys,
			SubscriptionSize: ms.SubscriptionSize,
		}
		for _, a := range ms.Subscriptions {
			mc.Subscriptions = append(mc.Subscriptions, model.Address(a))
		}
		cfg.Models = append(cfg.Models, mc)
	}
	return cfg
}

// NodeStateStore manages persistence of node state to a CBOR file.
type NodeStateStore struct {
	mu   sync.Mutex
	path string
}

// NewNodeStateStore creates a new node state store.
func NewNodeStateStore(path string) *NodeStateStore {
	return &NodeStateStore{path: path}
}

// Path returns the state file path.
func (s *NodeStateStore) Path() string {
	return s.path
}

// Save persists the node state to disk.
func (s *NodeStateStore) Save(state *NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := cbor.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the node state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *NodeStateStore) Load() (*NodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &NodeState{}
	if err := cbor.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, state.Version)
	}
	return state, nil
}

// Clear removes the state file.
func (s *NodeStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
