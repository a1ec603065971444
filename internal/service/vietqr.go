package service

import (
	"fmt"
	"strconv"
	"strings"
)

// NAPAS 247 identifiers for account transfers
const (
	napasGUID        = "A000000727"
	napasToAccount   = "QRIBFTTA"
	currencyVND      = "704"
	countryVietnam   = "VN"
	crcPlaceholderID = "63"
)

func tlv(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// BuildVietQRPayload returns the EMVCo payload banking apps scan for a NAPAS
// transfer of amount dong to accountNo at the bank with BIN bankBIN, with
// addInfo as the transfer memo.
func BuildVietQRPayload(bankBIN, accountNo string, amount int64, addInfo string) string {
	beneficiary := tlv("00", bankBIN) + tlv("01", accountNo)
	merchant := tlv("00", napasGUID) + tlv("01", beneficiary) + tlv("02", napasToAccount)

	var b strings.Builder
	b.WriteString(tlv("00", "01"))
	b.WriteString(tlv("01", "12"))
	b.WriteString(tlv("38", merchant))
	b.WriteString(tlv("53", currencyVND))
	if amount > 0 {
		b.WriteString(tlv("54", strconv.FormatInt(amount, 10)))
	}
	b.WriteString(tlv("58", countryVietnam))
	if addInfo != "" {
		b.WriteString(tlv("62", tlv("08", addInfo)))
	}
	b.WriteString(crcPlaceholderID + "04")

	payload := b.String()
	return payload + fmt.Sprintf("%04X", crc16CCITT([]byte(payload)))
}

// crc16CCITT is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF).
func crc16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, c := range data {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
