package domain

import "errors"

var (
	// ErrGuardRejected means the submitted amount was empty, non-numeric or not positive.
	ErrGuardRejected = errors.New("purchase rejected: amount must be a positive number")

	// ErrWalletNotConnected means a wallet-backed purchase was attempted without an active wallet.
	ErrWalletNotConnected = errors.New("wallet not connected")

	// ErrPurchaseInFlight means another purchase attempt is still approving or confirming.
	ErrPurchaseInFlight = errors.New("purchase already in flight")

	// ErrUnknownCurrency means the requested currency is not part of the catalog.
	ErrUnknownCurrency = errors.New("unknown currency")

	// ErrApprovalFailed means the allowance-granting transaction failed.
	ErrApprovalFailed = errors.New("approval failed")

	// ErrExecutionFailed means the purchase transaction failed after submission.
	ErrExecutionFailed = errors.New("purchase execution failed")

	// ErrSetupFailed means a transaction could not be prepared.
	ErrSetupFailed = errors.New("transaction setup failed")

	// ErrNoPriceAvailable means no snapshot price exists for the currency.
	ErrNoPriceAvailable = errors.New("no price available")

	// ErrSessionNotFound means the session expired or never existed.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUpstreamSourceFailure means a price provider could not be reached or returned garbage.
	ErrUpstreamSourceFailure = errors.New("upstream source failure")
)
