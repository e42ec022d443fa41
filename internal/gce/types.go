package gce

// Wire types for the subset of the Compute Engine v1 REST API this system
// uses. Field names follow the API's JSON exactly.

// Instance is the compute API instance resource.
type Instance struct {
	Name              string              `json:"name"`
	MachineType       string              `json:"machineType,omitempty"`
	Disks             []AttachedDisk      `json:"disks,omitempty"`
	NetworkInterfaces []NetworkInterface  `json:"networkInterfaces,omitempty"`
	GuestAccelerators []AcceleratorConfig `json:"guestAccelerators,omitempty"`
	Scheduling        *Scheduling         `json:"scheduling,omitempty"`
	Metadata          *Metadata           `json:"metadata,omitempty"`
	Status            string              `json:"status,omitempty"`
	CreationTimestamp string              `json:"creationTimestamp,omitempty"`
}

type AttachedDisk struct {
	Boot             bool              `json:"boot"`
	AutoDelete       bool              `json:"autoDelete"`
	InitializeParams *InitializeParams `json:"initializeParams,omitempty"`
}

type InitializeParams struct {
	SourceImage string `json:"sourceImage"`
	DiskSizeGB  int64  `json:"diskSizeGb,omitempty,string"`
}

type NetworkInterface struct {
	Network       string         `json:"network,omitempty"`
	AccessConfigs []AccessConfig `json:"accessConfigs,omitempty"`
	NetworkIP     string         `json:"networkIP,omitempty"`
}

type AccessConfig struct {
	Type  string `json:"type,omitempty"`
	Name  string `json:"name,omitempty"`
	NatIP string `json:"natIP,omitempty"`
}

type AcceleratorConfig struct {
	AcceleratorType  string `json:"acceleratorType"`
	AcceleratorCount int    `json:"acceleratorCount"`
}

type Scheduling struct {
	ProvisioningModel         string `json:"provisioningModel,omitempty"`
	Preemptible               bool   `json:"preemptible,omitempty"`
	AutomaticRestart          *bool  `json:"automaticRestart,omitempty"`
	OnHostMaintenance         string `json:"onHostMaintenance,omitempty"`
	InstanceTerminationAction string `json:"instanceTerminationAction,omitempty"`
}

type Metadata struct {
	Items []MetadataItem `json:"items,omitempty"`
}

type MetadataItem struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

// ExternalIP returns the instance's first NAT address, or "" when the
// instance has no external connectivity yet.
func (i *Instance) ExternalIP() string {
	for _, ni := range i.NetworkInterfaces {
		for _, ac := range ni.AccessConfigs {
			if ac.NatIP != "" {
				return ac.NatIP
			}
		}
	}
	return ""
}

// MetadataValue returns the value of the named metadata item, or "".
func (i *Instance) MetadataValue(key string) string {
	if i.Metadata == nil {
		return ""
	}
	for _, item := range i.Metadata.Items {
		if item.Key == key && item.Value != nil {
			return *item.Value
		}
	}
	return ""
}

// operation is the compute API zonal operation resource.
type operation struct {
	Name   string `json:"name"`
	Status string `json:"status"` // PENDING, RUNNING, DONE
	Error  *struct {
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error,omitempty"`
}

type instanceList struct {
	Items []Instance `json:"items"`
}

// apiError is the envelope the compute API wraps failures in.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}
