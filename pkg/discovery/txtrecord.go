package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/simple-beacon/beacon-go/pkg/model"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeNodeTXT creates the TXT records for a node.
func EncodeNodeTXT(info *NodeInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyID:       info.UUID.String(),
		TXTKeyAddress:  fmt.Sprintf("%04X", uint16(info.UnicastAddress)),
		TXTKeyCompany:  fmt.Sprintf("%04X", info.CompanyID),
		TXTKeyElements: strconv.Itoa(info.ElementCount),
	}
	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	return txt
}

// DecodeNodeTXT parses the TXT records of a node.
func DecodeNodeTXT(txt TXTRecordMap) (*NodeInfo, error) {
	info := &NodeInfo{}

	idStr, ok := txt[TXTKeyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyID)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("%w: id %q", ErrInvalidTXTRecord, idStr)
	}
	info.UUID = id

	addr, err := parseHex16(txt, TXTKeyAddress)
	if err != nil {
		return nil, err
	}
	info.UnicastAddress = model.Address(addr)
	if info.UnicastAddress != model.AddressUnassigned && !info.UnicastAddress.IsUnicast() {
		return nil, fmt.Errorf("%w: addr %s is not unicast", ErrInvalidTXTRecord, info.UnicastAddress)
	}

	if info.CompanyID, err = parseHex16(txt, TXTKeyCompany); err != nil {
		return nil, err
	}

	elStr, ok := txt[TXTKeyElements]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyElements)
	}
	el, err := strconv.ParseUint(elStr, 10, 8)
	if err != nil || el == 0 {
		return nil, fmt.Errorf("%w: el %q", ErrInvalidTXTRecord, elStr)
	}
	info.ElementCount = int(el)

	info.Name = txt[TXTKeyName]
	return info, nil
}

func parseHex16(txt TXTRecordMap, key string) (uint16, error) {
	s, ok := txt[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingRequired, key)
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidTXTRecord, key, s)
	}
	return uint16(v), nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		if !found {
			// Key without value (boolean flag)
			v = ""
		}
		txt[k] = v
	}
	return txt
}
