package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for a device.
func EncodeTXT(info *DeviceInfo) TXTRecordMap {
	return TXTRecordMap{
		TXTKeyID:      info.ID,
		TXTKeyInputs:  strconv.Itoa(info.Inputs),
		TXTKeyOutputs: strconv.Itoa(info.Outputs),
		TXTKeyVersion: strconv.Itoa(TXTVersion),
	}
}

// DecodeTXT parses device TXT records. The instance name is not part of
// the record and is left empty.
func DecodeTXT(txt TXTRecordMap) (*DeviceInfo, error) {
	info := &DeviceInfo{}

	var ok bool
	if info.ID, ok = txt[TXTKeyID]; !ok || info.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyID)
	}

	var err error
	if info.Inputs, err = parseCount(txt, TXTKeyInputs); err != nil {
		return nil, err
	}
	if info.Outputs, err = parseCount(txt, TXTKeyOutputs); err != nil {
		return nil, err
	}
	return info, nil
}

func parseCount(txt TXTRecordMap, key string) (int, error) {
	s, ok := txt[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingRequired, key)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, key, s)
	}
	return n, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
