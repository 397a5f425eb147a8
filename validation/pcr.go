package validation

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cloudx-io/streamauction/auctionapi"
)

// LoadPCRsFromFile loads known PCR sets from a JSON file. Every set must pin PCR0-2 as
// hex; PCR8 is optional.
func LoadPCRsFromFile(path string) ([]PCRSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCR config file: %w", err)
	}

	var config PCRConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse PCR config: %w", err)
	}
	if len(config.PCRSets) == 0 {
		return nil, fmt.Errorf("no PCR sets found in config file")
	}

	for i, set := range config.PCRSets {
		for _, index := range set.pinned() {
			value := set.value(index)
			if value == "" {
				return nil, fmt.Errorf("PCR set #%d: pcr%d is empty", i, index)
			}
			if _, err := hex.DecodeString(value); err != nil {
				return nil, fmt.Errorf("PCR set #%d: pcr%d is not hex: %w", i, index, err)
			}
		}
	}
	return config.PCRSets, nil
}

// PCRMatch is the result of comparing attested measurements with the known sets.
type PCRMatch struct {
	Matched bool
	// Index is the matching set, or the closest set when nothing matched. It is -1
	// when no sets are known.
	Index int
	// Mismatched lists the registers that differ from the closest set.
	Mismatched []int
}

// MatchPCRs compares pcrs with every known set and returns the first exact match.
// Otherwise it reports the set with the fewest differing registers.
func MatchPCRs(pcrs auctionapi.PCRs, knownSets []PCRSet) PCRMatch {
	closest := PCRMatch{Index: -1}
	for i, set := range knownSets {
		var mismatched []int
		for _, index := range set.pinned() {
			if !strings.EqualFold(set.value(index), attestedPCR(pcrs, index)) {
				mismatched = append(mismatched, index)
			}
		}
		if len(mismatched) == 0 {
			return PCRMatch{Matched: true, Index: i}
		}
		if closest.Index == -1 || len(mismatched) < len(closest.Mismatched) {
			closest = PCRMatch{Index: i, Mismatched: mismatched}
		}
	}
	return closest
}

// pinned lists the registers a set constrains.
func (s PCRSet) pinned() []int {
	if s.PCR8 != "" {
		return []int{0, 1, 2, 8}
	}
	return []int{0, 1, 2}
}

func (s PCRSet) value(index int) string {
	switch index {
	case 0:
		return s.PCR0
	case 1:
		return s.PCR1
	case 2:
		return s.PCR2
	case 8:
		return s.PCR8
	}
	return ""
}

func attestedPCR(pcrs auctionapi.PCRs, index int) string {
	switch index {
	case 0:
		return pcrs.ImageFileHash
	case 1:
		return pcrs.KernelHash
	case 2:
		return pcrs.ApplicationHash
	case 3:
		return pcrs.IAMRoleHash
	case 4:
		return pcrs.InstanceIDHash
	case 8:
		return pcrs.SigningCertHash
	}
	return ""
}
