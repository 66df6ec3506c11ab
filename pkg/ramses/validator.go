// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package ramses

import "fmt"

// AnomalyType classifies a payload validation failure.
type AnomalyType int

// Payload anomaly kinds.
const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidValue
	AnomalyInvalidAddress
)

// ValidationError describes one payload anomaly. A packet may carry
// several.
type ValidationError struct {
	Type    AnomalyType
	Message string
}

// Error implements the error interface.
func (v *ValidationError) Error() string { return v.Message }

// ValidatePayload runs the per-code sanity checks for a packet. An
// empty result means the payload is plausible; anomalies are counted by
// the engine and surfaced as diagnostics, never fatal.
func ValidatePayload(p *Packet) []ValidationError {
	switch p.Code() {
	case Code1FC9:
		return validateBind(p)
	case Code10E0:
		return validateDeviceInfo(p)
	case Code22F1:
		return validateFanMode(p)
	case Code31D9:
		return validateVentState(p)
	case Code1060:
		return validateBattery(p)
	case Code30C9:
		return validateTemperature(p)
	}
	return nil
}

func lengthError(code Code, got, want int) []ValidationError {
	return []ValidationError{{
		Type:    AnomalyLengthMismatch,
		Message: fmt.Sprintf("%s payload of %d bytes, expected %d", code, got, want),
	}}
}

// validateBind checks 1FC9 triplet structure and the same-source rule.
// An affirm (single idx byte) is exempt.
func validateBind(p *Packet) []ValidationError {
	payload := p.Payload()
	if len(payload) == 1 {
		return nil // affirm
	}
	triplets, err := DecodeTriplets(payload)
	if err != nil {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: err.Error(),
		}}
	}
	var errs []ValidationError
	for _, t := range triplets {
		if t.Addr != p.Src() {
			errs = append(errs, ValidationError{
				Type:    AnomalyInvalidAddress,
				Message: fmt.Sprintf("1FC9 triplet address %s differs from source %s", t.Addr, p.Src()),
			})
		}
	}
	return errs
}

func validateDeviceInfo(p *Packet) []ValidationError {
	if p.Verb() == RQ {
		return nil
	}
	if len(p.Payload()) < 18 {
		return lengthError(Code10E0, len(p.Payload()), 18)
	}
	return nil
}

func validateFanMode(p *Packet) []ValidationError {
	payload := p.Payload()
	if len(payload) != 3 {
		return lengthError(Code22F1, len(payload), 3)
	}
	if payload[2] != 0 && payload[1] > payload[2] {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("22F1 mode %02X above limit %02X", payload[1], payload[2]),
		}}
	}
	return nil
}

func validateVentState(p *Packet) []ValidationError {
	if p.Verb() == RQ {
		return nil
	}
	if len(p.Payload()) < 3 {
		return lengthError(Code31D9, len(p.Payload()), 3)
	}
	return nil
}

func validateBattery(p *Packet) []ValidationError {
	payload := p.Payload()
	if p.Verb() == RQ {
		return nil
	}
	if len(payload) != 3 {
		return lengthError(Code1060, len(payload), 3)
	}
	// Battery level is half-percent units, 00..C8, or FF for unknown.
	if payload[1] > 0xC8 && payload[1] != 0xFF {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("1060 battery level %02X out of range", payload[1]),
		}}
	}
	return nil
}

func validateTemperature(p *Packet) []ValidationError {
	payload := p.Payload()
	if p.Verb() == RQ {
		return nil
	}
	if len(payload)%3 != 0 || len(payload) == 0 {
		return lengthError(Code30C9, len(payload), 3)
	}
	var errs []ValidationError
	for i := 0; i < len(payload); i += 3 {
		raw := int16(uint16(payload[i+1])<<8 | uint16(payload[i+2]))
		if raw != 0x7FFF && (raw < -1000 || raw > 5000) { // -10.00C .. 50.00C
			errs = append(errs, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("30C9 zone %02X temperature %d out of range", payload[i], raw),
			})
		}
	}
	return errs
}
