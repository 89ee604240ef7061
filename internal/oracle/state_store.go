package oracle

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type stateRecord struct {
	Pair                 string `json:"pair"`
	Token0               string `json:"token0"`
	Token1               string `json:"token1"`
	Status               string `json:"status"`
	Price0CumulativeLast string `json:"price0_cumulative_last,omitempty"`
	Price1CumulativeLast string `json:"price1_cumulative_last,omitempty"`
	BlockTimestampLast   uint32 `json:"block_timestamp_last"`
	Price0Average        string `json:"price0_average,omitempty"`
	Price1Average        string `json:"price1_average,omitempty"`
	UpdatedAt            string `json:"updated_at"`
}

// StateStore persists oracle state to a JSON file so a restarted poller
// keeps its window.
type StateStore struct {
	path    string
	enabled bool
}

func NewStateStore(path string, enabled bool) *StateStore {
	return &StateStore{path: path, enabled: enabled && path != ""}
}

func (c *StateStore) Load() (State, bool, error) {
	if c == nil || !c.enabled {
		return State{}, false, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("read oracle state: %w", err)
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return State{}, false, fmt.Errorf("parse oracle state: %w", err)
	}
	s, err := rec.state()
	if err != nil {
		return State{}, false, err
	}
	return s, true, nil
}

func (c *StateStore) Save(s State) error {
	if c == nil || !c.enabled {
		return nil
	}

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create oracle state dir: %w", err)
		}
	}

	rec := stateRecord{
		Pair:                 s.Pair.Hex(),
		Token0:               s.Token0.Hex(),
		Token1:               s.Token1.Hex(),
		Status:               s.Status.String(),
		Price0CumulativeLast: decString(s.Price0CumulativeLast),
		Price1CumulativeLast: decString(s.Price1CumulativeLast),
		BlockTimestampLast:   s.BlockTimestampLast,
		Price0Average:        decString(s.Price0Average),
		Price1Average:        decString(s.Price1Average),
		UpdatedAt:            time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal oracle state: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write oracle state tmp: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("rename oracle state: %w", err)
	}
	return nil
}

func (r stateRecord) state() (State, error) {
	s := State{
		Pair:               common.HexToAddress(r.Pair),
		Token0:             common.HexToAddress(r.Token0),
		Token1:             common.HexToAddress(r.Token1),
		BlockTimestampLast: r.BlockTimestampLast,
	}
	switch r.Status {
	case Ready.String():
		s.Status = Ready
	case Uninitialized.String(), "":
		s.Status = Uninitialized
	default:
		return State{}, fmt.Errorf("unknown oracle status %q", r.Status)
	}

	var err error
	if s.Price0CumulativeLast, err = parseUint256(r.Price0CumulativeLast); err != nil {
		return State{}, err
	}
	if s.Price1CumulativeLast, err = parseUint256(r.Price1CumulativeLast); err != nil {
		return State{}, err
	}
	if s.Price0Average, err = parseUint256(r.Price0Average); err != nil {
		return State{}, err
	}
	if s.Price1Average, err = parseUint256(r.Price1Average); err != nil {
		return State{}, err
	}
	return s, nil
}

func decString(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.ToBig().String()
}

func parseUint256(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid uint256: %s", s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow || b.Sign() < 0 {
		return nil, fmt.Errorf("uint256 out of range: %s", s)
	}
	return v, nil
}
