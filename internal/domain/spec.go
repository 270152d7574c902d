package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrSpecCategoryMismatch = errors.New("spec category does not match product category")

type CPUSpec struct {
	Socket        string  `json:"socket"`
	Cores         int     `json:"cores"`
	Threads       int     `json:"threads"`
	BaseClockGHz  float64 `json:"baseClockGhz"`
	BoostClockGHz float64 `json:"boostClockGhz"`
	TDPWatts      int     `json:"tdpWatts"`
}

type GPUSpec struct {
	Chipset  string `json:"chipset"`
	MemoryGB int    `json:"memoryGb"`
	LengthMM int    `json:"lengthMm"`
	TDPWatts int    `json:"tdpWatts"`
}

type MotherboardSpec struct {
	Socket      string `json:"socket"`
	FormFactor  string `json:"formFactor"`
	MemoryType  string `json:"memoryType"`
	MemorySlots int    `json:"memorySlots"`
}

type RAMSpec struct {
	Type       string `json:"type"`
	CapacityGB int    `json:"capacityGb"`
	Modules    int    `json:"modules"`
	SpeedMHz   int    `json:"speedMhz"`
}

type StorageSpec struct {
	Kind       string `json:"kind"`
	CapacityGB int    `json:"capacityGb"`
	Interface  string `json:"interface"`
}

type PSUSpec struct {
	Watts      int    `json:"watts"`
	Efficiency string `json:"efficiency"`
	Modular    bool   `json:"modular"`
}

type CaseSpec struct {
	FormFactor     string `json:"formFactor"`
	MaxGPULengthMM int    `json:"maxGpuLengthMm"`
}

type CoolerSpec struct {
	Kind          string   `json:"kind"`
	SocketSupport []string `json:"socketSupport"`
	HeightMM      int      `json:"heightMm"`
}

// ComponentSpec holds the attributes of exactly one component category.
// Only the field matching Category is set.
type ComponentSpec struct {
	Category    Category
	CPU         *CPUSpec
	GPU         *GPUSpec
	Motherboard *MotherboardSpec
	RAM         *RAMSpec
	Storage     *StorageSpec
	PSU         *PSUSpec
	Case        *CaseSpec
	Cooler      *CoolerSpec
}

type specEnvelope struct {
	Category   Category        `json:"category"`
	Attributes json.RawMessage `json:"attributes"`
}

func (s ComponentSpec) attributes() any {
	switch {
	case s.Category == CategoryCPU && s.CPU != nil:
		return s.CPU
	case s.Category == CategoryGPU && s.GPU != nil:
		return s.GPU
	case s.Category == CategoryMotherboard && s.Motherboard != nil:
		return s.Motherboard
	case s.Category == CategoryRAM && s.RAM != nil:
		return s.RAM
	case s.Category == CategoryStorage && s.Storage != nil:
		return s.Storage
	case s.Category == CategoryPSU && s.PSU != nil:
		return s.PSU
	case s.Category == CategoryCase && s.Case != nil:
		return s.Case
	case s.Category == CategoryCooler && s.Cooler != nil:
		return s.Cooler
	}
	return nil
}

func (s ComponentSpec) MarshalJSON() ([]byte, error) {
	if s.Category == "" {
		return []byte("null"), nil
	}
	attrs, err := json.Marshal(s.attributes())
	if err != nil {
		return nil, err
	}
	return json.Marshal(specEnvelope{Category: s.Category, Attributes: attrs})
}

func (s *ComponentSpec) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ComponentSpec{}
		return nil
	}
	var env specEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	out := ComponentSpec{Category: env.Category}
	var target any
	switch env.Category {
	case CategoryCPU:
		out.CPU = &CPUSpec{}
		target = out.CPU
	case CategoryGPU:
		out.GPU = &GPUSpec{}
		target = out.GPU
	case CategoryMotherboard:
		out.Motherboard = &MotherboardSpec{}
		target = out.Motherboard
	case CategoryRAM:
		out.RAM = &RAMSpec{}
		target = out.RAM
	case CategoryStorage:
		out.Storage = &StorageSpec{}
		target = out.Storage
	case CategoryPSU:
		out.PSU = &PSUSpec{}
		target = out.PSU
	case CategoryCase:
		out.Case = &CaseSpec{}
		target = out.Case
	case CategoryCooler:
		out.Cooler = &CoolerSpec{}
		target = out.Cooler
	default:
		return fmt.Errorf("unknown spec category %q", env.Category)
	}

	if len(env.Attributes) > 0 && string(env.Attributes) != "null" {
		if err := json.Unmarshal(env.Attributes, target); err != nil {
			return fmt.Errorf("decode %s attributes: %w", env.Category, err)
		}
	}
	*s = out
	return nil
}

// CheckCategory verifies the spec describes a product of category c.
func (s ComponentSpec) CheckCategory(c Category) error {
	if s.Category == "" {
		return nil
	}
	if s.Category != c || s.attributes() == nil {
		return ErrSpecCategoryMismatch
	}
	return nil
}
