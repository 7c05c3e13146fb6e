package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and cross-field rules that tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if cfg.Server.MaxReadSize < cfg.Server.MaxBufferSize {
		return fmt.Errorf("server.max_read_size (%s) must be at least server.max_buffer_size (%s)",
			cfg.Server.MaxReadSize, cfg.Server.MaxBufferSize)
	}

	printShares := 0
	for _, s := range cfg.Shares {
		if s.Printable {
			printShares++
		}
	}
	if printShares > 0 && cfg.Spool.Directory == "" {
		return fmt.Errorf("spool.directory is required when a printable share is configured")
	}

	return nil
}
