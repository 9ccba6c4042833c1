package camera

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/utils"
)

// An AttributeMapConverter converts an attribute map into a model's native config.
type AttributeMapConverter func(attributes utils.AttributeMap) (interface{}, error)

// A Constructor opens a device of a model given its converted config.
type Constructor func(ctx context.Context, index int, conf interface{}, logger logging.Logger) (Device, error)

// A Registration describes how to convert the attributes of a device model and how to open it.
type Registration struct {
	Open                  Constructor
	AttributeMapConverter AttributeMapConverter
}

// ConfigValidator is implemented by native configs that can check themselves.
type ConfigValidator interface {
	Validate(path string) ([]string, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Registration{}
)

// RegisterDeviceModel registers a device model. Registering the same model twice panics.
func RegisterDeviceModel(model string, reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[model]; ok {
		panic(errors.Errorf("trying to register two camera device models with same name %q", model))
	}
	if reg.Open == nil {
		panic(errors.Errorf("cannot register a nil constructor for camera device model %q", model))
	}
	registry[model] = reg
}

// LookupDeviceModel looks up a device model by name.
func LookupDeviceModel(model string) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[model]
	return reg, ok
}

// RegisteredDeviceModels returns the names of all registered models, sorted.
func RegisteredDeviceModels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := lo.Keys(registry)
	sort.Strings(models)
	return models
}

// NewOpener returns an Opener for the named model configured with attributes. The attributes are
// converted and validated once, up front.
func NewOpener(model string, attributes utils.AttributeMap, logger logging.Logger) (Opener, error) {
	reg, ok := LookupDeviceModel(model)
	if !ok {
		return nil, utils.NewUnknownModelError("camera device", model)
	}
	var conf interface{} = attributes
	if reg.AttributeMapConverter != nil {
		var err error
		conf, err = reg.AttributeMapConverter(attributes)
		if err != nil {
			return nil, errors.Wrapf(err, "error converting attributes for camera device model %q", model)
		}
	}
	if validator, ok := conf.(ConfigValidator); ok {
		if _, err := validator.Validate("attributes"); err != nil {
			return nil, err
		}
	}
	deviceLogger := logger.Sublogger(model)
	return OpenerFunc(func(ctx context.Context, index int) (Device, error) {
		return reg.Open(ctx, index, conf, deviceLogger)
	}), nil
}

// TransformAttributeMap uses an attribute map to transform attributes to the prescribed format.
func TransformAttributeMap[T any](attributes utils.AttributeMap) (T, error) {
	var out T

	var forResult interface{}

	toT := reflect.TypeOf(out)
	if toT.Kind() == reflect.Ptr {
		// needs to be allocated then
		var ok bool
		out, ok = reflect.New(toT.Elem()).Interface().(T)
		if !ok {
			return out, errors.Errorf("failed to allocate default config type %T", out)
		}
		forResult = out
	} else {
		forResult = &out
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           forResult,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return out, err
	}
	return out, nil
}

// ConverterFor returns an AttributeMapConverter decoding into a *T.
func ConverterFor[T any]() AttributeMapConverter {
	return func(attributes utils.AttributeMap) (interface{}, error) {
		return TransformAttributeMap[*T](attributes)
	}
}

// NativeConfig asserts that conf, as produced by a converter, is a *T. A nil conf is the zero config.
func NativeConfig[T any](conf interface{}) (*T, error) {
	if conf == nil {
		return new(T), nil
	}
	return utils.AssertType[*T](conf)
}
