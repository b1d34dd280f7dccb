// Package device holds the attribute model shared by base stations and
// cameras, as returned by the cloud device listing.
package device

import (
	"encoding/json"
	"strings"
)

// Properties is the nested property block of a device listing entry.
type Properties struct {
	HwVersion     string `json:"hwVersion"`
	OlsonTimeZone string `json:"olsonTimeZone"`
	SerialNumber  string `json:"serialNumber"`
}

// Attrs is one device entry from the cloud device listing. The identity
// fields are fixed for the lifetime of a device; only Properties and the
// presigned URLs change between refreshes.
type Attrs struct {
	DeviceID   string     `json:"deviceId"`
	DeviceName string     `json:"deviceName"`
	DeviceType string     `json:"deviceType"`
	ModelID    string     `json:"modelId"`
	ParentID   string     `json:"parentId"`
	UserID     string     `json:"userId"`
	UserRole   string     `json:"userRole"`
	XCloudID   string     `json:"xCloudId"`
	Properties Properties `json:"properties"`

	// ClassID is the numeric device-class prefix the cloud prepends to the
	// device id when it reports a unique id. It is kept separately so the
	// unique id is always derived, never stored.
	ClassID string `json:"-"`

	MediaObjectCount           int    `json:"mediaObjectCount"`
	PresignedLastImageURL      string `json:"presignedLastImageUrl"`
	PresignedFullFrameSnapshot string `json:"presignedFullFrameSnapshotUrl"`
}

// UniqueID returns the cloud-wide identifier, always rebuilt from its parts.
func (a Attrs) UniqueID() string {
	return a.ClassID + "-" + a.DeviceID
}

// UnmarshalJSON decodes a device entry, splitting the reported uniqueId into
// its class prefix so callers only ever see the derived form.
func (a *Attrs) UnmarshalJSON(data []byte) error {
	type plain Attrs
	aux := struct {
		*plain
		UniqueID string `json:"uniqueId"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if prefix, _, ok := strings.Cut(aux.UniqueID, "-"); ok {
		a.ClassID = prefix
	}
	return nil
}

// Device type values used by the discovery layer.
const (
	TypeBaseStation = "basestation"
	TypeCamera      = "camera"
	TypeArloQ       = "arloq"
	TypeArloQPlus   = "arloqs"
)

// IsBaseStation reports whether the entry describes a hub device. The
// all-in-one models act as their own base station.
func (a Attrs) IsBaseStation() bool {
	switch a.DeviceType {
	case TypeBaseStation, TypeArloQ, TypeArloQPlus:
		return true
	}
	return false
}

// IsCamera reports whether the entry describes a camera device.
func (a Attrs) IsCamera() bool {
	switch a.DeviceType {
	case TypeCamera, TypeArloQ, TypeArloQPlus:
		return true
	}
	return false
}
