package basestation

// Resource names a property group that can be queried on a base station.
// Membership is closed: the cloud API only answers for these categories.
type Resource string

const (
	ResourceBaseStation Resource = "basestation"
	ResourceCameras     Resource = "cameras"
	ResourceModes       Resource = "modes"
	ResourceRules       Resource = "rules"
	ResourceSchedule    Resource = "schedule"
)

// Resources returns the fixed set of queryable resource categories.
func Resources() []Resource {
	return []Resource{
		ResourceBaseStation,
		ResourceCameras,
		ResourceModes,
		ResourceRules,
		ResourceSchedule,
	}
}

// Arm-state mode names.
const (
	ModeArmed    = "armed"
	ModeDisarmed = "disarmed"
	ModeSchedule = "schedule"
)

// fixedModes maps the mode names every account has to their cloud ids.
// Custom modes discovered at runtime are merged on top.
func fixedModes() map[string]string {
	return map[string]string{
		ModeArmed:    "mode1",
		ModeDisarmed: "mode0",
		ModeSchedule: "true",
	}
}
