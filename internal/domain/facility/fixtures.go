package facility

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Fixtures is the seed file format:
//
//	hospitals:
//	  - key: korle-bu
//	    name: Korle Bu Teaching Hospital
//	    region: Greater Accra
//	users:
//	  - email: admin@korlebu.example
//	    password: change-me-now
//	    fullName: Ama Mensah
//	    role: hospital_admin
//	    hospital: korle-bu
//
// Users refer to organizations by key; an explicit hospitalId or pharmacyId
// is also accepted.
type Fixtures struct {
	Hospitals  []OrgFixture  `yaml:"hospitals"`
	Pharmacies []OrgFixture  `yaml:"pharmacies"`
	Users      []UserFixture `yaml:"users"`
}

type OrgFixture struct {
	Key     string    `yaml:"key"`
	ID      uuid.UUID `yaml:"id"`
	Name    string    `yaml:"name"`
	Region  string    `yaml:"region"`
	Address string    `yaml:"address"`
	Phone   string    `yaml:"phone"`
}

type UserFixture struct {
	NewUser  `yaml:",inline"`
	Hospital string `yaml:"hospital"`
	Pharmacy string `yaml:"pharmacy"`
	Inactive bool   `yaml:"inactive"`
}

// SeedResult counts what ApplyFixtures created and skipped.
type SeedResult struct {
	Hospitals    int
	Pharmacies   int
	Users        int
	SkippedUsers int
	SkippedOrgs  int
}

// LoadFixtures decodes a seed file. Unknown fields are rejected so that a typo
// does not silently drop a scope.
func LoadFixtures(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixtures
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &f, nil
}

// ApplyFixtures creates everything in f within one transaction. Users whose
// email already exists and organizations whose id already exists are
// skipped, so seeding twice is harmless.
func (s *Service) ApplyFixtures(ctx context.Context, f *Fixtures) (SeedResult, error) {
	var res SeedResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		res = SeedResult{}
		hospitals := make(map[string]uuid.UUID, len(f.Hospitals))
		pharmacies := make(map[string]uuid.UUID, len(f.Pharmacies))

		for _, of := range f.Hospitals {
			if of.ID != uuid.Nil {
				if _, err := s.orgs.GetHospital(ctx, of.ID); err == nil {
					hospitals[of.Key] = of.ID
					res.SkippedOrgs++
					continue
				} else if !errors.Is(err, ErrNotFound) {
					return err
				}
			}
			h := &Hospital{ID: of.ID, Name: of.Name, Region: of.Region, Address: optString(of.Address), Phone: optString(of.Phone)}
			if err := s.CreateHospital(ctx, nil, h); err != nil {
				return fmt.Errorf("hospital %q: %w", of.Name, err)
			}
			hospitals[of.Key] = h.ID
			res.Hospitals++
		}

		for _, of := range f.Pharmacies {
			if of.ID != uuid.Nil {
				if _, err := s.orgs.GetPharmacy(ctx, of.ID); err == nil {
					pharmacies[of.Key] = of.ID
					res.SkippedOrgs++
					continue
				} else if !errors.Is(err, ErrNotFound) {
					return err
				}
			}
			p := &Pharmacy{ID: of.ID, Name: of.Name, Region: of.Region, Address: optString(of.Address), Phone: optString(of.Phone)}
			if err := s.CreatePharmacy(ctx, nil, p); err != nil {
				return fmt.Errorf("pharmacy %q: %w", of.Name, err)
			}
			pharmacies[of.Key] = p.ID
			res.Pharmacies++
		}

		for _, uf := range f.Users {
			exists, err := s.users.EmailExists(ctx, uf.Email)
			if err != nil {
				return err
			}
			if exists {
				res.SkippedUsers++
				continue
			}

			in := uf.NewUser
			if uf.Hospital != "" {
				id, ok := hospitals[uf.Hospital]
				if !ok {
					return fmt.Errorf("user %s: unknown hospital key %q", uf.Email, uf.Hospital)
				}
				in.HospitalID = &id
			}
			if uf.Pharmacy != "" {
				id, ok := pharmacies[uf.Pharmacy]
				if !ok {
					return fmt.Errorf("user %s: unknown pharmacy key %q", uf.Email, uf.Pharmacy)
				}
				in.PharmacyID = &id
			}

			u, err := s.CreateUser(ctx, nil, in)
			if err != nil {
				return fmt.Errorf("user %s: %w", uf.Email, err)
			}
			if uf.Inactive {
				if err := s.users.SetActive(ctx, u.ID, false); err != nil {
					return err
				}
			}
			res.Users++
		}
		return nil
	})
	return res, err
}
