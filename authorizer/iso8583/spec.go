package iso8583

import (
	"io"

	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/encoding"
	"github.com/moov-io/iso8583/field"
	"github.com/moov-io/iso8583/network"
	"github.com/moov-io/iso8583/padding"
	"github.com/moov-io/iso8583/prefix"
)

// Spec is the subset of ISO 8583:1987 the authorizer speaks. Field 62 is
// used privately for the card password.
var Spec = &iso8583.MessageSpec{
	Name: "Card Authorizer",
	Fields: map[int]field.Field{
		0: field.NewString(&field.Spec{
			Length:      4,
			Description: "Message Type Indicator",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		1: field.NewBitmap(&field.Spec{
			Length:      8,
			Description: "Bitmap",
			Enc:         encoding.BytesToASCIIHex,
			Pref:        prefix.Hex.Fixed,
		}),
		2: field.NewString(&field.Spec{
			Length:      19,
			Description: "Primary Account Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		4: field.NewNumeric(&field.Spec{
			Length:      12,
			Description: "Transaction Amount",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
			Pad:         padding.Left('0'),
		}),
		11: field.NewString(&field.Spec{
			Length:      6,
			Description: "Systems Trace Audit Number (STAN)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		39: field.NewString(&field.Spec{
			Length:      2,
			Description: "Response Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		62: field.NewString(&field.Spec{
			Length:      999,
			Description: "Card Password",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LLL,
		}),
	},
}

// Response codes (DE39).
const (
	ResponseApproved            = "00"
	ResponseFormatError         = "30"
	ResponseCardNotFound        = "14"
	ResponseInsufficientBalance = "51"
	ResponseInvalidPassword     = "55"
	ResponseIssuerUnavailable   = "91"
	ResponseSystemError         = "96"
)

// AuthorizationRequest is the 0100 message. STAN is echoed back verbatim, so
// it is sent as all six digits and never padded.
type AuthorizationRequest struct {
	CardNumber   *field.String  `index:"2"`
	Amount       *field.Numeric `index:"4"`
	STAN         *field.String  `index:"11"`
	CardPassword *field.String  `index:"62"`
}

// AuthorizationResponse is the 0110 message.
type AuthorizationResponse struct {
	STAN         *field.String `index:"11"`
	ResponseCode *field.String `index:"39"`
}

func readMessageLength(r io.Reader) (int, error) {
	header := network.NewBinary2BytesHeader()
	n, err := header.ReadFrom(r)
	if err != nil {
		return n, err
	}
	return header.Length(), nil
}

func writeMessageLength(w io.Writer, length int) (int, error) {
	header := network.NewBinary2BytesHeader()
	if err := header.SetLength(length); err != nil {
		return 0, err
	}
	return header.WriteTo(w)
}
