package arkade

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// DecodePSBT parses a base64 PSBT
func DecodePSBT(encoded string) (*psbt.Packet, error) {
	packet, err := psbt.NewFromRawBytes(strings.NewReader(encoded), true)
	if err != nil {
		return nil, fmt.Errorf("invalid psbt: %w", err)
	}
	return packet, nil
}

// TxID returns the id of the unsigned transaction inside packet
func TxID(packet *psbt.Packet) string {
	return packet.UnsignedTx.TxHash().String()
}

// inputSigned reports whether in carries any kind of signature
func inputSigned(in psbt.PInput) bool {
	return len(in.TaprootScriptSpendSig) > 0 ||
		len(in.TaprootKeySpendSig) > 0 ||
		len(in.FinalScriptWitness) > 0 ||
		len(in.FinalScriptSig) > 0 ||
		len(in.PartialSigs) > 0
}

// checkSigned returns the index of the first unsigned input, or -1
func checkSigned(packet *psbt.Packet) int {
	if len(packet.Inputs) == 0 {
		return 0
	}
	for i, in := range packet.Inputs {
		if !inputSigned(in) {
			return i
		}
	}
	return -1
}

// checkOutputs finds an output paying at least amount to payTo. It returns a
// failure reason and message, or two empty strings.
func checkOutputs(packet *psbt.Packet, payTo *Address, amount uint64) (string, string) {
	var best int64 = -1
	for _, out := range packet.UnsignedTx.TxOut {
		if !payTo.PaysTo(out.PkScript) {
			continue
		}
		if out.Value > best {
			best = out.Value
		}
	}
	switch {
	case best < 0:
		return ErrRecipientMismatch, "no output pays the requested ark address"
	case uint64(best) < amount:
		return ErrInsufficientValue, fmt.Sprintf("output pays %d sats, %d required", best, amount)
	}
	return "", ""
}
