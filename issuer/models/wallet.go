package models

// DigitizationState is the device-wallet tokenization state of a card.
type DigitizationState string

const (
	DigitizationStateNotDigitized DigitizationState = "NOT_DIGITIZED"
	DigitizationStatePending      DigitizationState = "PENDING"
	DigitizationStateDigitized    DigitizationState = "DIGITIZED"
)

// ProvisioningFailure qualifies a push provisioning failure.
type ProvisioningFailure string

const (
	ProvisioningFailureCancelled          ProvisioningFailure = "CANCELLED"
	ProvisioningFailureMisconfigured      ProvisioningFailure = "MISCONFIGURED"
	ProvisioningFailureDeviceUnsafe       ProvisioningFailure = "DEVICE_UNSAFE"
	ProvisioningFailureWalletUnsupported  ProvisioningFailure = "WALLET_UNSUPPORTED"
	ProvisioningFailureDebugBuildRejected ProvisioningFailure = "DEBUG_BUILD_REJECTED"
	ProvisioningFailureCardNotFound       ProvisioningFailure = "CARD_NOT_FOUND"
	ProvisioningFailureNotLoggedIn        ProvisioningFailure = "NOT_LOGGED_IN"
	ProvisioningFailureUnknown            ProvisioningFailure = "UNKNOWN"
)

// DigitizationFailure qualifies a failure to read the digitization state.
type DigitizationFailure string

const (
	DigitizationFailureWalletUnavailable DigitizationFailure = "WALLET_UNAVAILABLE"
	DigitizationFailureCardNotFound      DigitizationFailure = "CARD_NOT_FOUND"
	DigitizationFailureNotLoggedIn       DigitizationFailure = "NOT_LOGGED_IN"
	DigitizationFailureUnknown           DigitizationFailure = "UNKNOWN"
)
