package arch

import (
	"github.com/pkg/errors"

	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/models"
)

var archMap = map[string]*models.Arch{
	"arm": arm.Arch,
}

func GetArch(name string) (*models.Arch, error) {
	a, ok := archMap[name]
	if !ok {
		return nil, errors.Errorf("Arch '%s' not found.", name)
	}
	return a, nil
}
