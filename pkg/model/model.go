package model

import (
	"fmt"
	"slices"
)

// CompanyNordic is the Bluetooth SIG company identifier owning the beacon models.
const CompanyNordic uint16 = 0x0059

// ID identifies a vendor model.
type ID struct {
	CompanyID uint16
	ModelID   uint16
}

// String returns the ID as "cccc:mmmm".
func (id ID) String() string {
	return fmt.Sprintf("%04X:%04X", id.CompanyID, id.ModelID)
}

// Handle is the identity of a registered model instance.
type Handle uint16

// InvalidHandle is returned alongside registration errors.
const InvalidHandle Handle = 0xFFFF

// Publication holds the publish parameters of a model.
// A model with an unassigned address has nowhere to publish.
type Publication struct {
	Address     Address
	AppKeyIndex uint16
	TTL         uint8
}

// ModelInfo is a read-only snapshot of a registered model.
type ModelInfo struct {
	Handle           Handle
	ElementIndex     uint16
	ID               ID
	Publication      Publication
	AppKeys          []uint16
	Subscriptions    []Address
	SubscriptionSize int
}

func (inst *instance) info(h Handle) ModelInfo {
	return ModelInfo{
		Handle:           h,
		ElementIndex:     inst.elementIndex,
		ID:               inst.id,
		Publication:      inst.publication,
		AppKeys:          slices.Clone(inst.appKeys),
		Subscriptions:    slices.Clone(inst.subscriptions),
		SubscriptionSize: inst.subscriptionCap,
	}
}

// Config is the provisioner-written part of a node, suitable for persistence.
type Config struct {
	UnicastAddress Address
	Models         []ModelConfig
}

// ModelConfig is the configuration of one model, keyed by element and ID.
type ModelConfig struct {
	ElementIndex     uint16
	ID               ID
	Publication      Publication
	AppKeys          []uint16
	Subscriptions    []Address
	SubscriptionSize int
}

// Snapshot captures the node configuration.
func (n *Node) Snapshot() Config {
	n.mu.RLock()
	defer n.mu.RUnlock()

	cfg := Config{UnicastAddress: n.unicast}
	for _, inst := range n.instances {
		cfg.Models = append(cfg.Models, ModelConfig{
			ElementIndex:     inst.elementIndex,
			ID:               inst.id,
			Publication:      inst.publication,
			AppKeys:          slices.Clone(inst.appKeys),
			Subscriptions:    slices.Clone(inst.subscriptions),
			SubscriptionSize: inst.subscriptionCap,
		})
	}
	return cfg
}

// Restore applies a configuration captured by Snapshot.
// Entries for models that are not registered are skipped.
func (n *Node) Restore(cfg Config) error {
	if cfg.UnicastAddress != AddressUnassigned {
		if err := n.SetUnicastAddress(cfg.UnicastAddress); err != nil {
			return err
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for _, mc := range cfg.Models {
		inst := n.find(mc.ElementIndex, mc.ID)
		if inst == nil {
			continue
		}
		if len(mc.Subscriptions) > mc.SubscriptionSize {
			return fmt.Errorf("%w: %d subscriptions for %s, list holds %d",
				ErrNoMemory, len(mc.Subscriptions), mc.ID, mc.SubscriptionSize)
		}
		inst.publication = mc.Publication
		inst.appKeys = slices.Clone(mc.AppKeys)
		inst.subscriptionCap = mc.SubscriptionSize
		inst.subscriptions = nil
		if mc.SubscriptionSize > 0 {
			inst.subscriptions = make([]Address, 0, mc.SubscriptionSize)
			inst.subscriptions = append(inst.subscriptions, mc.Subscriptions...)
		}
	}
	return nil
}

// find returns the instance for an element/ID pair. Caller holds n.mu.
func (n *Node) find(elementIndex uint16, id ID) *instance {
	for _, inst := range n.instances {
		if inst.elementIndex == elementIndex && inst.id == id {
			return inst
		}
	}
	return nil
}
