package auth

import (
	"context"
	"errors"

	"github.com/tendant/simple-micropub/pkg/micropub"
)

// Chain tries each verifier in order and accepts the first identity returned.
// A token every verifier rejects is invalid; if any verifier failed for
// another reason that failure is reported instead.
type Chain []micropub.TokenVerifier

func (c Chain) Verify(ctx context.Context, token string) (*micropub.AuthContext, error) {
	var failure error
	for _, v := range c {
		auth, err := v.Verify(ctx, token)
		if err == nil {
			return auth, nil
		}
		if !errors.Is(err, micropub.ErrInvalidToken) && failure == nil {
			failure = err
		}
	}
	if failure != nil {
		return nil, failure
	}
	return nil, micropub.ErrInvalidToken
}
