package ctdf

// TransportType is the raw serviceType reported by the rail departure board.
type TransportType string

//goland:noinspection GoUnusedConst
const (
	TransportTypeBus     TransportType = "bus"
	TransportTypeFerry   TransportType = "ferry"
	TransportTypeTrain   TransportType = "train"
	TransportTypeUnknown TransportType = "unknown"
)

const (
	ServiceCodeBus     = "BUS"
	ServiceCodeFerry   = "FRY"
	ServiceCodeTrain   = "TRN"
	ServiceCodeUnknown = "UNK"
)

// ServiceCode returns the short display code for the transport type.
// Anything outside the known set is UNK.
func (t TransportType) ServiceCode() string {
	switch t {
	case TransportTypeBus:
		return ServiceCodeBus
	case TransportTypeFerry:
		return ServiceCodeFerry
	case TransportTypeTrain:
		return ServiceCodeTrain
	default:
		return ServiceCodeUnknown
	}
}

func ServiceTypeCode(serviceType string) string {
	return TransportType(serviceType).ServiceCode()
}
