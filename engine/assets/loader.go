package assets

import "github.com/spaghettifunk/lumen/engine/renderer/metadata"

/**
 * @brief Decodes one kind of asset from disk. params is loader specific, for
 * images it is *metadata.ImageResourceParams.
 */
type Loader interface {
	Load(path string, params interface{}) (*metadata.Resource, error)
	Unload(*metadata.Resource) error
}
