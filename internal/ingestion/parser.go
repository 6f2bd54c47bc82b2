package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"EstabloLedger/internal/event"
)

// RequestSubjectPrefix is the root of the inbound request subject space.
// The suffix names the request type: establo.requests.mint, establo.requests.list_asset.
const RequestSubjectPrefix = "establo.requests."

// subjectSuffixes maps subject suffixes to request type names.
var subjectSuffixes = map[string]string{
	"init_ledger":          "InitLedger",
	"mint":                 "Mint",
	"burn":                 "Burn",
	"transfer":             "Transfer",
	"update_reserves":      "UpdateReserves",
	"update_fee_recipient": "UpdateFeeRecipient",
	"init_marketplace":     "InitMarketplace",
	"list_asset":           "ListAsset",
	"revalue_asset":        "RevalueAsset",
	"transfer_asset":       "TransferAsset",
	"liquidate_asset":      "LiquidateAsset",
	"set_threshold":        "SetThreshold",
}

// SubjectRequestType resolves a NATS subject to a request type name.
func SubjectRequestType(subject string) (string, error) {
	suffix := strings.TrimPrefix(subject, RequestSubjectPrefix)
	if suffix == subject {
		return "", fmt.Errorf("subject %q outside request space", subject)
	}
	// Tolerate a trailing tenant/routing token after the type.
	if i := strings.IndexByte(suffix, '.'); i >= 0 {
		suffix = suffix[:i]
	}
	reqType, ok := subjectSuffixes[suffix]
	if !ok {
		return "", fmt.Errorf("unknown request subject %q", subject)
	}
	return reqType, nil
}

// ParseRequest decodes a JSON payload into the typed request named by
// requestType. Shared by the NATS path and startup replay, which stores
// the same type names in the outcome log.
func ParseRequest(requestType string, data []byte) (event.Request, error) {
	var req event.Request

	switch requestType {
	case "InitLedger":
		req = &event.InitLedger{}
	case "Mint":
		req = &event.Mint{}
	case "Burn":
		req = &event.Burn{}
	case "Transfer":
		req = &event.Transfer{}
	case "UpdateReserves":
		req = &event.UpdateReserves{}
	case "UpdateFeeRecipient":
		req = &event.UpdateFeeRecipient{}
	case "InitMarketplace":
		req = &event.InitMarketplace{}
	case "ListAsset":
		req = &event.ListAsset{}
	case "RevalueAsset":
		req = &event.RevalueAsset{}
	case "TransferAsset":
		req = &event.TransferAsset{}
	case "LiquidateAsset":
		req = &event.LiquidateAsset{}
	case "SetThreshold":
		req = &event.SetThreshold{}
	default:
		return nil, fmt.Errorf("unknown request type: %s", requestType)
	}

	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("parse %s: %w", requestType, err)
	}

	if err := validateEnvelopeFields(req); err != nil {
		return nil, fmt.Errorf("%s: %w", requestType, err)
	}

	return req, nil
}

// validateEnvelopeFields checks the fields every request must carry before
// the core sees it. Domain validation happens inside the core.
func validateEnvelopeFields(req event.Request) error {
	if req.Ref() == uuid.Nil {
		return fmt.Errorf("missing request_id")
	}
	if req.CallerID().IsZero() {
		return fmt.Errorf("missing caller")
	}
	if req.RequestTime().IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	return nil
}
