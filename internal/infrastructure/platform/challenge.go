package platform

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/errcodes"
)

const (
	actionTypeGeneric      = "Generic"
	challengeTypeTwoStep   = "twostepverification"
	challengeVerifyPathFmt = "/v1/users/%s/challenges/authenticator/verify"
)

type verifyRequest struct {
	ChallengeID string `json:"challengeId"`
	ActionType  string `json:"actionType"`
	Code        string `json:"code"`
}

type verifyResponse struct {
	VerificationToken string `json:"verificationToken"`
}

// VerifyChallenge submits an authenticator code and returns the verification
// token. An expired or revoked secret yields errcodes.ChallengeExpired.
func (c *Client) VerifyChallenge(ctx context.Context, userID int64, challengeID, code string) (string, error) {
	body := verifyRequest{ChallengeID: challengeID, ActionType: actionTypeGeneric, Code: code}
	endpoint := c.cfg.ChallengeURL + fmt.Sprintf(challengeVerifyPathFmt, strconv.FormatInt(userID, 10))

	var resp verifyResponse
	if _, err := c.call(ctx, "verify_challenge", http.MethodPost, endpoint, body, &resp); err != nil {
		return "", fmt.Errorf("verify challenge: %w", err)
	}

	if resp.VerificationToken == "" {
		return "", domain.NewError(errcodes.ChallengeFailed, "no verification token in response")
	}

	return resp.VerificationToken, nil
}

type continueMetadata struct {
	VerificationToken string `json:"verificationToken"`
	RememberDevice    bool   `json:"rememberDevice"`
	ChallengeID       string `json:"challengeId"`
	ActionType        string `json:"actionType"`
}

type continueRequest struct {
	ChallengeID       string `json:"challengeId"`
	ChallengeType     string `json:"challengeType"`
	ChallengeMetadata string `json:"challengeMetadata"`
}

// ContinueChallenge redeems the verification token so that the next send of
// the same offer goes through.
func (c *Client) ContinueChallenge(ctx context.Context, challenge entity.Challenge, verificationToken string) error {
	meta, err := json.MarshalToString(continueMetadata{
		VerificationToken: verificationToken,
		RememberDevice:    false,
		ChallengeID:       challenge.ID,
		ActionType:        actionTypeGeneric,
	})
	if err != nil {
		return fmt.Errorf("json.MarshalToString: %w", err)
	}

	body := continueRequest{
		ChallengeID:       challenge.HeaderID,
		ChallengeType:     challengeTypeTwoStep,
		ChallengeMetadata: meta,
	}

	if _, err := c.call(ctx, "continue_challenge", http.MethodPost, c.cfg.ApisURL+"/challenge/v1/continue", body, nil); err != nil {
		return fmt.Errorf("continue challenge: %w", err)
	}

	return nil
}
