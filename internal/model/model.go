package model

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/omaps-oss/resman/internal/obf"
)

// ResourceType enumerates the kinds of resources the manager knows about.
// Unknown is a parse-time sentinel and is never stored in a registry.
type ResourceType int

const (
	ResourceTypeUnknown ResourceType = iota
	ResourceTypeMapRegion
	ResourceTypeVoicePack
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeMapRegion:
		return "map"
	case ResourceTypeVoicePack:
		return "voice"
	default:
		return "unknown"
	}
}

// ParseResourceType maps a catalog type attribute to a ResourceType.
// Unrecognized values yield ResourceTypeUnknown.
func ParseResourceType(s string) ResourceType {
	switch s {
	case "map":
		return ResourceTypeMapRegion
	case "voice":
		return ResourceTypeVoicePack
	default:
		return ResourceTypeUnknown
	}
}

// LocalResource describes a resource installed on the device. Identity is the
// Name alone: two LocalResources with the same name refer to the same resource
// regardless of the storage root they were found under.
//
// MapFile is set only for map regions and carries the probe result along with
// the advisory removal lock.
type LocalResource struct {
	Name        string
	Type        ResourceType
	Timestamp   uint64 // ms since Unix epoch
	ContentSize uint64
	LocalPath   string
	MapFile     *obf.MapFile
}

// RemoteResource describes a downloadable resource listed in the repository
// index. Name has any trailing ".zip" already stripped; DownloadURL still
// refers to the original container name.
type RemoteResource struct {
	Name          string
	Type          ResourceType
	Timestamp     uint64 // ms since Unix epoch
	ContentSize   uint64
	ContainerSize uint64
	DownloadURL   string
}

// NewMapRegion builds a map-region LocalResource. The map file must have been
// probed already; mapFile carries the probe result.
func NewMapRegion(name string, timestamp, contentSize uint64, localPath string, mapFile *obf.MapFile) (LocalResource, error) {
	if err := validate(name, localPath); err != nil {
		return LocalResource{}, err
	}
	if mapFile == nil {
		return LocalResource{}, fmt.Errorf("%w: map region %q has no map file info", ErrInvalidResource, name)
	}
	return LocalResource{
		Name:        name,
		Type:        ResourceTypeMapRegion,
		Timestamp:   timestamp,
		ContentSize: contentSize,
		LocalPath:   localPath,
		MapFile:     mapFile,
	}, nil
}

// NewVoicePack builds a voice-pack LocalResource pointing at the pack directory.
func NewVoicePack(name string, timestamp, contentSize uint64, localPath string) (LocalResource, error) {
	if err := validate(name, localPath); err != nil {
		return LocalResource{}, err
	}
	return LocalResource{
		Name:        name,
		Type:        ResourceTypeVoicePack,
		Timestamp:   timestamp,
		ContentSize: contentSize,
		LocalPath:   localPath,
	}, nil
}

// NewRemoteResource builds a RemoteResource from parsed catalog attributes.
// name is the registry key, i.e. with ".zip" already stripped.
func NewRemoteResource(name string, typ ResourceType, timestamp, contentSize, containerSize uint64, downloadURL string) (RemoteResource, error) {
	if name == "" {
		return RemoteResource{}, fmt.Errorf("%w: empty name", ErrInvalidResource)
	}
	if typ != ResourceTypeMapRegion && typ != ResourceTypeVoicePack {
		return RemoteResource{}, fmt.Errorf("%w: type %v for %q", ErrUnknownType, typ, name)
	}
	if downloadURL == "" {
		return RemoteResource{}, fmt.Errorf("%w: empty download url for %q", ErrInvalidResource, name)
	}
	return RemoteResource{
		Name:          name,
		Type:          typ,
		Timestamp:     timestamp,
		ContentSize:   contentSize,
		ContainerSize: containerSize,
		DownloadURL:   downloadURL,
	}, nil
}

func validate(name, localPath string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidResource)
	}
	if !filepath.IsAbs(localPath) {
		return fmt.Errorf("%w: path %q of %q is not absolute", ErrInvalidResource, localPath, name)
	}
	return nil
}

// StripContainerExt removes a trailing ".zip" from a container or file name.
// Resource names in the registries are always post-strip.
func StripContainerExt(name string) string {
	return strings.TrimSuffix(name, ".zip")
}
