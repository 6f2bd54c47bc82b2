package ingestion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EstabloLedger/internal/event"
	"EstabloLedger/internal/identity"
)

func TestSubjectRequestType(t *testing.T) {
	cases := []struct {
		subject string
		want    string
		wantErr bool
	}{
		{"establo.requests.mint", "Mint", false},
		{"establo.requests.list_asset", "ListAsset", false},
		{"establo.requests.mint.tenant-a", "Mint", false},
		{"establo.requests.unknown_op", "", true},
		{"establo.ledger.outcomes.minted", "", true},
	}

	for _, tc := range cases {
		got, err := SubjectRequestType(tc.subject)
		if tc.wantErr {
			assert.Error(t, err, tc.subject)
			continue
		}
		require.NoError(t, err, tc.subject)
		assert.Equal(t, tc.want, got, tc.subject)
	}
}

func TestParseRequest_Mint(t *testing.T) {
	caller := identity.Derive("parser/admin")
	recipient := identity.Derive("parser/recipient")
	payload := fmt.Sprintf(`{
		"request_id": "a2b94f60-3f1b-4f6e-9d77-0a4c1d7e8f90",
		"caller": %q,
		"timestamp": "2026-03-01T12:00:00Z",
		"recipient": %q,
		"amount": 250000
	}`, caller.String(), recipient.String())

	req, err := ParseRequest("Mint", []byte(payload))
	require.NoError(t, err)

	mint, ok := req.(*event.Mint)
	require.True(t, ok)
	assert.Equal(t, caller, mint.Caller)
	assert.Equal(t, recipient, mint.Recipient)
	assert.Equal(t, uint64(250000), mint.Amount)
	assert.Equal(t, event.RequestTypeMint, mint.Kind())
}

func TestParseRequest_RejectsMissingEnvelopeFields(t *testing.T) {
	caller := identity.Derive("parser/admin")

	// No request_id.
	_, err := ParseRequest("Burn", []byte(fmt.Sprintf(
		`{"caller": %q, "timestamp": "2026-03-01T12:00:00Z", "from": %q, "amount": 1}`,
		caller.String(), caller.String())))
	assert.ErrorContains(t, err, "request_id")

	// No caller.
	_, err = ParseRequest("Burn", []byte(
		`{"request_id": "a2b94f60-3f1b-4f6e-9d77-0a4c1d7e8f90", "timestamp": "2026-03-01T12:00:00Z", "amount": 1}`))
	assert.ErrorContains(t, err, "caller")
}

func TestParseRequest_RejectsMalformed(t *testing.T) {
	_, err := ParseRequest("Mint", []byte(`{"caller": "not-hex"`))
	assert.Error(t, err)

	_, err = ParseRequest("SettleEpoch", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown request type")
}

func TestParseRequest_ThresholdOverridePointer(t *testing.T) {
	caller := identity.Derive("parser/owner")
	asset := identity.Derive("parser/asset")

	base := `{"request_id": "a2b94f60-3f1b-4f6e-9d77-0a4c1d7e8f90",
		"caller": %q, "timestamp": "2026-03-01T12:00:00Z",
		"asset_mint_ref": %q, "value": 100000, "location": "x", "details": "y"%s}`

	req, err := ParseRequest("ListAsset", []byte(fmt.Sprintf(base, caller.String(), asset.String(), "")))
	require.NoError(t, err)
	assert.Nil(t, req.(*event.ListAsset).ThresholdPct)

	req, err = ParseRequest("ListAsset", []byte(fmt.Sprintf(base, caller.String(), asset.String(), `, "threshold_pct": 75`)))
	require.NoError(t, err)
	require.NotNil(t, req.(*event.ListAsset).ThresholdPct)
	assert.Equal(t, uint32(75), *req.(*event.ListAsset).ThresholdPct)
}
