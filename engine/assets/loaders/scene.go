package loaders

import (
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// SceneLoader wraps metadata.LoadScene so scenes can be fetched through the asset manager.
type SceneLoader struct{}

func (sl *SceneLoader) Load(path string, params interface{}) (*metadata.Resource, error) {
	spheres, err := metadata.LoadScene(path)
	if err != nil {
		return nil, err
	}
	return &metadata.Resource{
		Name:     "scene",
		FullPath: path,
		DataSize: uint64(len(spheres) * metadata.SphereSize),
		Data:     spheres,
	}, nil
}

func (sl *SceneLoader) Unload(res *metadata.Resource) error {
	if res != nil {
		res.Data = nil
	}
	return nil
}
