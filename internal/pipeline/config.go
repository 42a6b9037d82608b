package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config describes the inputs of a run.
type Config struct {
	SourceRoot     string   `mapstructure:"source" validate:"required,dir"`
	RosterFile     string   `mapstructure:"roster" validate:"required,file"`
	MappingFile    string   `mapstructure:"mapping" validate:"omitempty,file"`
	Administrators []string `mapstructure:"admins" validate:"omitempty,dive,required"`
	BypassMissing  bool     `mapstructure:"bypass-missing"`
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid run config: %s", strings.Join(msgs, "; "))
}

func (c Config) wantAdmin(admin string) bool {
	if len(c.Administrators) == 0 {
		return true
	}
	for _, a := range c.Administrators {
		if a == admin {
			return true
		}
	}
	return false
}
