// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

// CRC-16-CCITT (poly 0x1021, init 0xFFFF, no reflection)
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

var crcTable = makeCRCTable()

func makeCRCTable() (t [256]uint16) {
	for n := range t {
		crc := uint16(n) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
		t[n] = crc
	}
	return t
}

// CalculateCRC returns the CRC-16-CCITT of data
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
