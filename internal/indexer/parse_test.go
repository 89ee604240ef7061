package indexer

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestParseTopic0(t *testing.T) {
	swap := crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))
	sync := crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))

	got, err := ParseTopic0([]string{"Swap", " " + sync.Hex() + " ", "", "AddedLiquidity"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 3 || got[0] != swap || got[1] != sync {
		t.Fatalf("unexpected topics: %v", got)
	}
	if got[2] != crypto.Keccak256Hash([]byte("AddedLiquidity(address,uint256)")) {
		t.Fatalf("unexpected helper topic: %s", got[2].Hex())
	}

	for _, bad := range []string{"Transferred", "0x1234", "0xzz"} {
		if _, err := ParseTopic0([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestCheckpointRejectsOtherChain(t *testing.T) {
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "cp", "checkpoint.json"), true)
	if _, ok, err := store.Load(1); ok || err != nil {
		t.Fatalf("missing checkpoint: %v %v", ok, err)
	}
	if err := store.Save(31337, 42); err != nil {
		t.Fatalf("save: %v", err)
	}

	cp, ok, err := store.Load(31337)
	if err != nil || !ok || cp.LastProcessedBlock != 42 {
		t.Fatalf("load: %+v %v %v", cp, ok, err)
	}
	if _, _, err := store.Load(1); err == nil || !strings.Contains(err.Error(), "chain 31337") {
		t.Fatalf("expected chain mismatch, got %v", err)
	}

	if _, ok, err := NewCheckpointStore("", true).Load(1); ok || err != nil {
		t.Fatalf("empty path should disable checkpoints: %v %v", ok, err)
	}
}
