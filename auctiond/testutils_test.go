package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/streamauction/core"
	"github.com/cloudx-io/streamauction/journal"
	"github.com/cloudx-io/streamauction/viewer"
)

var (
	testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	bidderA   = common.HexToAddress("0x000000000000000000000000000000000000000a")
	bidderB   = common.HexToAddress("0x000000000000000000000000000000000000000b")
	bidderC   = common.HexToAddress("0x000000000000000000000000000000000000000c")
)

func testAuctionConfig() core.Config {
	return core.Config{
		Host:         common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		Agreement:    common.HexToAddress("0x00000000000000000000000000000000000000f2"),
		Asset:        common.HexToAddress("0x00000000000000000000000000000000000000f3"),
		Owner:        ownerAddr,
		HoldDuration: 100 * time.Second,
		StepPercent:  10,
	}
}

// testClock is the wall clock seen by a Service under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testDaemon is a Service with everything it is wired to.
type testDaemon struct {
	service  *Service
	store    journal.Store
	clock    *testClock
	feed     *Feed
	registry *viewer.Registry
	keys     *KeyManager
}

func newTestDaemon(t *testing.T, store journal.Store, attester EnclaveAttester) *testDaemon {
	t.Helper()
	keys, err := NewKeyManager()
	assert.Nil(t, err)

	d := &testDaemon{
		store:    store,
		clock:    &testClock{now: testStart},
		feed:     NewFeed(),
		registry: viewer.NewRegistry(),
		keys:     keys,
	}

	cfg := ServiceConfig{
		Auction:    testAuctionConfig(),
		Store:      store,
		KeyManager: keys,
		Feed:       d.feed,
		Viewer:     d.registry,
		Now:        d.clock.Now,
	}
	if attester != nil {
		cfg.Attester = func() (EnclaveAttester, error) { return attester, nil }
	}

	d.service, err = NewService(context.Background(), cfg)
	assert.Nil(t, err)
	return d
}

func rate(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func (d *testDaemon) admit(account common.Address, r int64, hint common.Address) bool {
	resp := d.service.StreamEvent(context.Background(), core.Event{
		Kind:    core.EventAdmitted,
		Account: account,
		Rate:    rate(r),
		Hint:    hint,
	})
	return resp.Success
}

// MockEnclaveHandle implements the Attest method for testing
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

// mustDecodeHex is a helper function to decode hex strings to actual hash bytes for testing
func mustDecodeHex(t *testing.T, hexStr string) []byte {
	t.Helper()
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		panic(fmt.Sprintf("invalid hex string: %s", hexStr))
	}
	return bytes
}

// CreateMockEnclave creates a mock enclave handle for testing with realistic attestation data
func CreateMockEnclave(t *testing.T) *MockEnclaveHandle {
	t.Helper()
	return &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id": "test-enclave-12345",
				"digest":    "SHA384",
				"timestamp": uint64(testStart.UnixMilli()),
				"pcrs": map[uint64][]byte{
					0: mustDecodeHex(t, "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"),
					1: mustDecodeHex(t, "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"),
					2: mustDecodeHex(t, "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"),
				},
				"certificate": []byte("test-certificate-data"),
				"cabundle":    [][]byte{[]byte("test-ca-cert")},
				"public_key":  []byte("test-public-key-data"),
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}

			nestedBytes, err := cbor.Marshal(nestedDoc)
			if err != nil {
				return nil, err
			}

			// AWS Nitro 4-element array format: [header, metadata, nested_doc, signature]
			return cbor.Marshal([]any{
				[]byte{0x01, 0x02, 0x03},
				map[string]any{},
				nestedBytes,
				[]byte{0x04, 0x05, 0x06},
			})
		},
	}
}
