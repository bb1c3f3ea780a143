// Package directory резолвит отображаемые атрибуты отправителя (имя, специализация).
package directory

import (
	"context"
	"fmt"
	"os"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

type Source interface {
	Profile(ctx context.Context, s domain.Sender) (domain.SenderProfile, error)
}

// Static: справочник из YAML-файла; используется вместе с badger-хранилищем.
type Static struct {
	clinics map[string]domain.SenderProfile
	doctors map[string]domain.SenderProfile
}

type clinicSeed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type doctorSeed struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Specialization string `yaml:"specialization"`
}

type seedFile struct {
	Clinics []clinicSeed `yaml:"clinics"`
	Doctors []doctorSeed `yaml:"doctors"`
}

// LoadStatic читает seed-файл. Пустой путь даёт пустой справочник.
func LoadStatic(path string) (*Static, error) {
	if path == "" {
		return ParseStatic(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory seed: %w", err)
	}
	return ParseStatic(data)
}

func ParseStatic(data []byte) (*Static, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse directory seed: %w", err)
	}

	return &Static{
		clinics: lo.SliceToMap(seed.Clinics, func(c clinicSeed) (string, domain.SenderProfile) {
			return c.ID, domain.SenderProfile{Name: c.Name}
		}),
		doctors: lo.SliceToMap(seed.Doctors, func(d doctorSeed) (string, domain.SenderProfile) {
			return d.ID, domain.SenderProfile{Name: d.Name, Specialization: d.Specialization}
		}),
	}, nil
}

func (s *Static) Profile(_ context.Context, sender domain.Sender) (domain.SenderProfile, error) {
	src := s.clinics
	if sender.IsDoctor() {
		src = s.doctors
	}
	p, ok := src[sender.ID()]
	if !ok {
		return domain.SenderProfile{}, fmt.Errorf("profile %s: %w", sender, domain.ErrNotFound)
	}
	return p, nil
}
