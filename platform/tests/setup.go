package tests

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"admotion_platform/platform/auth"
	"admotion_platform/platform/schema"
	"admotion_platform/platform/services"
	"admotion_platform/platform/storage"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	platform services.Platform
	api      chi.Router
	db       *gorm.DB
	storage  storage.Storage
}

const (
	adminName     = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(schema.AllTables()...)
	if err != nil {
		t.Fatal(err)
	}

	if err := services.SeedDefaultSettings(db); err != nil {
		t.Fatal(err)
	}

	storagePath := filepath.Join(t.TempDir(), "/storage")
	err = os.MkdirAll(storagePath, 0777)
	if err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}

	store := storage.NewSharedDisk(storagePath)

	secret := []byte("290zcv02ai249")

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        secret,
			AdminName:     adminName,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	platform := services.NewPlatform(db, store, userAuth, secret)

	return &testEnv{platform: platform, api: platform.Routes(), db: db, storage: store}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

// newCompany registers a company and logs it in. The company is still
// awaiting approval afterwards.
func (t *testEnv) newCompany(name, cnpj string) (client, error) {
	c := t.newClient()
	login, err := c.signupCompany(name, name+"@mail.com", name+"_Pass1", cnpj)
	if err != nil {
		return client{}, err
	}
	err = c.login(login)
	return c, err
}

// newApprovedCompany registers a company and approves it with the admin client.
func (t *testEnv) newApprovedCompany(admin client, name, cnpj string) (client, error) {
	c, err := t.newCompany(name, cnpj)
	if err != nil {
		return client{}, err
	}
	if err := admin.Post(fmt.Sprintf("/company/%v/approve", c.userId)).Do(nil); err != nil {
		return client{}, err
	}
	return c, nil
}

func (t *testEnv) newDriver(name, cpf string) (client, error) {
	c := t.newClient()
	login, err := c.signupDriver(name, name+"@mail.com", name+"_Pass1", cpf)
	if err != nil {
		return client{}, err
	}
	err = c.login(login)
	return c, err
}

func (t *testEnv) newApprovedDriver(admin client, name, cpf string) (client, error) {
	c, err := t.newDriver(name, cpf)
	if err != nil {
		return client{}, err
	}
	if err := admin.Post(fmt.Sprintf("/driver/%v/approve", c.userId)).Do(nil); err != nil {
		return client{}, err
	}
	return c, nil
}

// deviceClient authenticates requests with a device token instead of a user login.
func (t *testEnv) deviceClient(admin client, deviceId string) (client, error) {
	var res map[string]string
	err := admin.Get(fmt.Sprintf("/device/%v/token", deviceId)).Do(&res)
	if err != nil {
		return client{}, err
	}
	return client{api: t.api, authToken: res["access_token"]}, nil
}
