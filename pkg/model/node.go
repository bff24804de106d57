package model

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Node errors.
var (
	ErrNoMemory           = errors.New("no memory available")
	ErrDuplicateOnElement = errors.New("model already registered on element")
	ErrElementNotFound    = errors.New("element not found")
	ErrInvalidHandle      = errors.New("invalid model handle")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrNotProvisioned     = errors.New("node has no unicast address")
	ErrNoSubscriptionList = errors.New("no subscription list allocated")
	ErrAlreadyAllocated   = errors.New("subscription list already allocated")
)

// Defaults for NodeConfig.
const (
	DefaultElementCount = 1
	DefaultMaxModels    = 8
	DefaultTTL          = 7
)

// NodeConfig configures a Node.
type NodeConfig struct {
	// UUID is the device UUID. A random one is generated when zero.
	UUID uuid.UUID

	// ElementCount is the number of elements (default: 1).
	ElementCount int

	// MaxModels caps the number of model instances across all elements (default: 8).
	MaxModels int

	// DefaultTTL is used for publications configured without a TTL (default: 7).
	DefaultTTL uint8
}

// Node is the top-level container in the Node > Element > Model hierarchy.
type Node struct {
	mu sync.RWMutex

	uuid         uuid.UUID
	elementCount int
	maxModels    int
	defaultTTL   uint8

	// unicast is the address of element 0; element i has unicast+i.
	unicast Address

	// instances indexed by Handle.
	instances []*instance
}

// instance is one registered model and its configuration.
type instance struct {
	elementIndex uint16
	id           ID

	publication Publication
	appKeys     []uint16

	// subscriptions is nil until a list is allocated.
	subscriptions   []Address
	subscriptionCap int
}

// NewNode creates a node with the given configuration.
func NewNode(cfg NodeConfig) *Node {
	if cfg.UUID == uuid.Nil {
		cfg.UUID = uuid.New()
	}
	if cfg.ElementCount <= 0 {
		cfg.ElementCount = DefaultElementCount
	}
	if cfg.MaxModels <= 0 {
		cfg.MaxModels = DefaultMaxModels
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	return &Node{
		uuid:         cfg.UUID,
		elementCount: cfg.ElementCount,
		maxModels:    cfg.MaxModels,
		defaultTTL:   cfg.DefaultTTL,
	}
}

// UUID returns the device UUID.
func (n *Node) UUID() uuid.UUID {
	return n.uuid
}

// DefaultTTL returns the TTL used for replies and unset publications.
func (n *Node) DefaultTTL() uint8 {
	return n.defaultTTL
}

// ElementCount returns the number of elements.
func (n *Node) ElementCount() int {
	return n.elementCount
}

// AddModel registers a model on an element and returns its handle.
func (n *Node) AddModel(elementIndex uint16, id ID) (Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if int(elementIndex) >= n.elementCount {
		return InvalidHandle, fmt.Errorf("%w: index %d", ErrElementNotFound, elementIndex)
	}
	if n.find(elementIndex, id) != nil {
		return InvalidHandle, fmt.Errorf("%w: %s on element %d", ErrDuplicateOnElement, id, elementIndex)
	}
	if len(n.instances) >= n.maxModels {
		return InvalidHandle, ErrNoMemory
	}

	n.instances = append(n.instances, &instance{elementIndex: elementIndex, id: id})
	return Handle(len(n.instances) - 1), nil
}

// get returns the instance for a handle. Caller holds n.mu.
func (n *Node) get(h Handle) (*instance, error) {
	if int(h) >= len(n.instances) {
		return nil, ErrInvalidHandle
	}
	return n.instances[h], nil
}

// Model returns a snapshot of a registered model.
func (n *Node) Model(h Handle) (ModelInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	inst, err := n.get(h)
	if err != nil {
		return ModelInfo{}, err
	}
	return inst.info(h), nil
}

// Models returns snapshots of all registered models in handle order.
func (n *Node) Models() []ModelInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()

	result := make([]ModelInfo, 0, len(n.instances))
	for i, inst := range n.instances {
		result = append(result, inst.info(Handle(i)))
	}
	return result
}

// SetUnicastAddress assigns the address of element 0.
// All element addresses must fit in the unicast range.
func (n *Node) SetUnicastAddress(base Address) error {
	last := uint32(base) + uint32(n.elementCount) - 1
	if !base.IsUnicast() || last > uint32(unicastMax) {
		return fmt.Errorf("%w: %s for %d elements", ErrInvalidAddress, base, n.elementCount)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.unicast = base
	return nil
}

// UnicastAddress returns the address of element 0, or AddressUnassigned.
func (n *Node) UnicastAddress() Address {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.unicast
}

// IsProvisioned returns true once a unicast address is assigned.
func (n *Node) IsProvisioned() bool {
	return n.UnicastAddress() != AddressUnassigned
}

// ElementAddress returns the unicast address of an element.
func (n *Node) ElementAddress(elementIndex uint16) (Address, error) {
	if int(elementIndex) >= n.elementCount {
		return AddressUnassigned, ErrElementNotFound
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.unicast == AddressUnassigned {
		return AddressUnassigned, ErrNotProvisioned
	}
	return n.unicast + Address(elementIndex), nil
}

// ElementIndex returns the element owning a unicast address.
func (n *Node) ElementIndex(addr Address) (uint16, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.unicast == AddressUnassigned || addr < n.unicast {
		return 0, false
	}
	idx := int(addr - n.unicast)
	if idx >= n.elementCount {
		return 0, false
	}
	return uint16(idx), true
}

// SetPublication configures where a model publishes.
// A zero TTL is replaced by the node default.
func (n *Node) SetPublication(h Handle, pub Publication) error {
	if pub.Address != AddressUnassigned && pub.Address.IsVirtual() {
		return fmt.Errorf("%w: virtual publish address %s", ErrInvalidAddress, pub.Address)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	inst, err := n.get(h)
	if err != nil {
		return err
	}
	if pub.TTL == 0 {
		pub.TTL = n.defaultTTL
	}
	inst.publication = pub
	return nil
}

// Publication returns the publication parameters of a model.
func (n *Node) Publication(h Handle) (Publication, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	inst, err := n.get(h)
	if err != nil {
		return Publication{}, err
	}
	return inst.publication, nil
}

// BindAppKey binds an application key index to a model.
func (n *Node) BindAppKey(h Handle, appKeyIndex uint16) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inst, err := n.get(h)
	if err != nil {
		return err
	}
	if !slices.Contains(inst.appKeys, appKeyIndex) {
		inst.appKeys = append(inst.appKeys, appKeyIndex)
	}
	return nil
}

// IsBound returns true if the model is bound to the application key.
func (n *Node) IsBound(h Handle, appKeyIndex uint16) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	inst, err := n.get(h)
	if err != nil {
		return false
	}
	return slices.Contains(inst.appKeys, appKeyIndex)
}

// AllocSubscriptionList gives a model room for size group subscriptions.
func (n *Node) AllocSubscriptionList(h Handle, size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: subscription list size %d", ErrNoMemory, size)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	inst, err := n.get(h)
	if err != nil {
		return err
	}
	if inst.subscriptionCap > 0 {
		return ErrAlreadyAllocated
	}
	inst.subscriptionCap = size
	inst.subscriptions = make([]Address, 0, size)
	return nil
}

// AddSubscription subscribes a model to a group address.
func (n *Node) AddSubscription(h Handle, addr Address) error {
	if !addr.IsGroup() || addr == AddressAllNodes {
		return fmt.Errorf("%w: %s is not a subscribable group", ErrInvalidAddress, addr)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	inst, err := n.get(h)
	if err != nil {
		return err
	}
	if inst.subscriptionCap == 0 {
		return ErrNoSubscriptionList
	}
	if slices.Contains(inst.subscriptions, addr) {
		return nil
	}
	if len(inst.subscriptions) >= inst.subscriptionCap {
		return ErrNoMemory
	}
	inst.subscriptions = append(inst.subscriptions, addr)
	return nil
}

// RemoveSubscription removes a group address from a model's subscription list.
func (n *Node) RemoveSubscription(h Handle, addr Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inst, err := n.get(h)
	if err != nil {
		return err
	}
	inst.subscriptions = slices.DeleteFunc(inst.subscriptions, func(a Address) bool { return a == addr })
	return nil
}

// IsSubscribed returns true if the model listens to the group address.
func (n *Node) IsSubscribed(h Handle, addr Address) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	inst, err := n.get(h)
	if err != nil {
		return false
	}
	return slices.Contains(inst.subscriptions, addr)
}

// ModelsOnElement returns the handles registered on an element.
func (n *Node) ModelsOnElement(elementIndex uint16) []Handle {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var result []Handle
	for i, inst := range n.instances {
		if inst.elementIndex == elementIndex {
			result = append(result, Handle(i))
		}
	}
	return result
}

// Reset clears the unicast address and every model's configuration.
// Registrations survive; the node behaves as freshly booted and unprovisioned.
func (n *Node) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.unicast = AddressUnassigned
	for _, inst := range n.instances {
		inst.publication = Publication{}
		inst.appKeys = nil
		inst.subscriptions = nil
		inst.subscriptionCap = 0
	}
}
