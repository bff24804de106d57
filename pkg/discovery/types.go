package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/simple-beacon/beacon-go/pkg/model"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of a beacon node's stream bearer.
	ServiceType = "_sbeacon._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// InstancePrefix starts every instance name.
	InstancePrefix = "beacon-"

	// BrowseTimeout is the default timeout for one-shot lookups.
	BrowseTimeout = 5 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyID       = "id"
	TXTKeyAddress  = "addr"
	TXTKeyCompany  = "cid"
	TXTKeyElements = "el"
	TXTKeyName     = "name"
)

// Discovery errors.
var (
	ErrNotFound         = errors.New("service not found")
	ErrMissingRequired  = errors.New("missing required TXT field")
	ErrInvalidTXTRecord = errors.New("invalid TXT record")
	ErrNotAdvertising   = errors.New("not advertising")
)

// NodeInfo is what a node announces about itself.
type NodeInfo struct {
	UUID           uuid.UUID
	UnicastAddress model.Address
	CompanyID      uint16
	ElementCount   int
	Name           string

	// Port of the stream bearer.
	Port uint16
}

// InstanceName returns the DNS-SD instance name for the node.
func (i *NodeInfo) InstanceName() string {
	return InstancePrefix + i.UUID.String()[:8]
}

// NodeService is a node found by browsing.
type NodeService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	NodeInfo
}

// Provisioned reports whether the node announced a unicast address.
func (s *NodeService) Provisioned() bool {
	return s.UnicastAddress != model.AddressUnassigned
}

// Advertiser announces a node on the local network.
type Advertiser interface {
	// Advertise starts announcing, replacing any previous announcement.
	Advertise(ctx context.Context, info *NodeInfo) error

	// Update replaces the TXT records of the running announcement.
	Update(info *NodeInfo) error

	// Stop withdraws the announcement.
	Stop() error
}

// Browser finds beacon nodes on the local network.
type Browser interface {
	// Browse streams nodes as they are found until ctx ends.
	Browse(ctx context.Context) (<-chan *NodeService, error)

	// FindByAddress returns the node announcing the given unicast address.
	FindByAddress(ctx context.Context, addr model.Address) (*NodeService, error)
}
