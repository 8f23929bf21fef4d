/*
Package authsdk is a client for the notes authentication service.

# Overview

The service is cookie based. SDKClient keeps the session cookie and the
short-lived verification cookie in a cookie jar, so a sequence of calls
behaves like one browser walking through a flow. Redirects are not followed:
responses that would redirect carry the next page in FlowResponse.RedirectTo.

	client, err := authsdk.NewSDKClient("https://auth.example.com")

	// Check service health
	health, err := client.GetLiveness(ctx)

# Signup

Signup is three steps. The service emails a code, the code is verified, and
the account details are submitted:

	_, err = client.Signup(ctx, authsdk.SignupRequest{Email: "alice@example.com"})

	// code from the email
	_, err = client.Verify(ctx, authsdk.VerifyRequest{
		Code:   code,
		Type:   "onboarding",
		Target: "alice@example.com",
	})

	flow, err := client.CompleteOnboarding(ctx, authsdk.OnboardingRequest{
		Username: "alice",
		Name:     "Alice",
		Password: "correct horse battery staple",
	})

# Two-factor login

When the account has an authenticator enrolled, Login does not start a
session. The response has TwoFactorRequired set and RedirectTo points at the
verify page, whose type and target query parameters are submitted back with
the authenticator code:

	flow, err := client.Login(ctx, authsdk.LoginRequest{Username: "alice", Password: pw})
	if flow.TwoFactorRequired {
		u, _ := url.Parse(flow.RedirectTo)
		flow, err = client.Verify(ctx, authsdk.VerifyRequest{
			Code:   otp,
			Type:   u.Query().Get("type"),
			Target: u.Query().Get("target"),
		})
	}

# Errors

Non-2xx responses are returned as *APIError. Code carries one of the
ErrorCode constants. A reverification_required error also carries the verify
page in RedirectTo:

	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeReverificationRequired {
		// prompt for a fresh authenticator code
	}

SDKClient is safe for concurrent use, but concurrent calls share cookies.
*/
package authsdk
