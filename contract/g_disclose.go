package contract

import (
	"fmt"

	"okinoko-cipher_duel/sdk"
)

// acceptDisclosure checks an oracle answer against the request it claims to
// fulfil. It returns a nil request when the answer must be ignored: unknown
// or consumed request, or a room no longer in progress.
func acceptDisclosure(chain sdk.Chain, d Disclosure) (*DisclosureRequest, *Room, error) {
	req, err := loadDisclosureRequest(chain, d.RequestID)
	if err != nil || req == nil {
		return nil, nil, err
	}
	if req.RoomID != d.RoomID {
		return nil, nil, fmt.Errorf("%w: request %d belongs to room %d, not %d", ErrInvalidInput, req.ID, req.RoomID, d.RoomID)
	}
	r, err := loadRoom(chain, req.RoomID)
	if err != nil {
		return nil, nil, err
	}
	if r.Phase != InProgress {
		return nil, nil, nil
	}
	fhe := chain.Confidential()
	if err := fhe.VerifyDisclosure(req.Handle, sdk.AddressValue(sdk.Address(d.Winner)), d.Proof); err != nil {
		return nil, nil, fmt.Errorf("%w: request %d: %v", ErrProofVerification, req.ID, err)
	}
	return req, r, nil
}
