package tests

import (
	"fmt"
	"testing"
	"time"

	"admotion_platform/platform/schema"
	"admotion_platform/platform/services"
)

func (t *testEnv) deviceById(admin client, deviceId string) (services.DeviceInfo, error) {
	var res services.DeviceInfo
	err := admin.Get(fmt.Sprintf("/device/%v", deviceId)).Do(&res)
	return res, err
}

func (t *testEnv) driverById(admin client, driverId string) (services.DriverInfo, error) {
	var res services.DriverInfo
	err := admin.Get(fmt.Sprintf("/driver/%v", driverId)).Do(&res)
	return res, err
}

func TestDeviceCreateAndList(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.createDevice("TAB-001"); err != nil {
		t.Fatal(err)
	}
	if _, err := admin.createDevice("TAB-001"); err == nil {
		t.Fatal("duplicate serial number should be rejected")
	}
	if _, err := admin.createDevice("TAB-002"); err != nil {
		t.Fatal(err)
	}

	devices, err := admin.listDevices()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
}

func TestDeviceReassignmentClearsOldLinks(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	driverA, err := env.newApprovedDriver(admin, "maria", validCpf1)
	if err != nil {
		t.Fatal(err)
	}
	driverB, err := env.newApprovedDriver(admin, "jose", validCpf2)
	if err != nil {
		t.Fatal(err)
	}

	device1, err := admin.createDevice("TAB-001")
	if err != nil {
		t.Fatal(err)
	}
	device2, err := admin.createDevice("TAB-002")
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.Post(fmt.Sprintf("/device/%v/assign/%v", device1, driverA.userId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	// Moving driver A to a second device must release device 1 in the same
	// operation: a driver can never hold two tablets.
	if err := admin.Post(fmt.Sprintf("/device/%v/assign/%v", device2, driverA.userId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	d1, err := env.deviceById(admin, device1)
	if err != nil {
		t.Fatal(err)
	}
	if d1.DriverId != nil {
		t.Fatalf("device 1 should have been released, still assigned to %v", d1.DriverId)
	}

	d2, err := env.deviceById(admin, device2)
	if err != nil {
		t.Fatal(err)
	}
	if d2.DriverId == nil || d2.DriverId.String() != driverA.userId {
		t.Fatalf("device 2 should be assigned to driver A, got %v", d2.DriverId)
	}

	// Handing device 2 to driver B must release driver A's side of the link.
	if err := admin.Post(fmt.Sprintf("/device/%v/assign/%v", device2, driverB.userId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	a, err := env.driverById(admin, driverA.userId)
	if err != nil {
		t.Fatal(err)
	}
	if a.DeviceId != nil {
		t.Fatalf("driver A should no longer hold a device, got %v", a.DeviceId)
	}

	b, err := env.driverById(admin, driverB.userId)
	if err != nil {
		t.Fatal(err)
	}
	if b.DeviceId == nil || b.DeviceId.String() != device2 {
		t.Fatalf("driver B should hold device 2, got %v", b.DeviceId)
	}
}

func TestDeviceDeleteRefusedWhileAssigned(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	driver, err := env.newApprovedDriver(admin, "maria", validCpf1)
	if err != nil {
		t.Fatal(err)
	}

	device, err := admin.createDevice("TAB-001")
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.Post(fmt.Sprintf("/device/%v/assign/%v", device, driver.userId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	if err := admin.Delete(fmt.Sprintf("/device/%v", device)).Do(nil); err == nil {
		t.Fatal("deleting an assigned device should be refused")
	}

	if err := admin.Post(fmt.Sprintf("/device/%v/unassign", device)).Do(nil); err != nil {
		t.Fatal(err)
	}

	if err := admin.Delete(fmt.Sprintf("/device/%v", device)).Do(nil); err != nil {
		t.Fatal(err)
	}
}

func TestDeviceSyncHeartbeat(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deviceId, err := admin.createDevice("TAB-001")
	if err != nil {
		t.Fatal(err)
	}

	device, err := env.deviceClient(admin, deviceId)
	if err != nil {
		t.Fatal(err)
	}

	lat, lon := -23.5505, -46.6333
	battery := 87
	body := map[string]interface{}{"latitude": lat, "longitude": lon, "battery_percent": battery}
	if err := device.Post("/device/sync").Json(body).Do(nil); err != nil {
		t.Fatal(err)
	}

	info, err := env.deviceById(admin, deviceId)
	if err != nil {
		t.Fatal(err)
	}
	if info.LastLatitude == nil || *info.LastLatitude != lat {
		t.Fatalf("expected latitude %v, got %v", lat, info.LastLatitude)
	}
	if info.LastSyncAt == nil {
		t.Fatal("sync should record last contact time")
	}

	// Each heartbeat appends to the location history.
	var locations []services.LocationEntry
	today := time.Now().UTC().Format("2006-01-02")
	err = admin.Get(fmt.Sprintf("/device/%v/locations?start=%v", deviceId, today)).Do(&locations)
	if err != nil {
		t.Fatal(err)
	}
	if len(locations) != 1 || locations[0].Latitude != lat {
		t.Fatalf("expected one location at %v, got %+v", lat, locations)
	}
	err = admin.Get(fmt.Sprintf("/device/%v/locations?start=not-a-date", deviceId)).Do(&locations)
	if err == nil {
		t.Fatal("malformed date filters should be rejected")
	}

	// Admin credentials must not work on the device endpoints.
	if err := admin.Post("/device/sync").Json(body).Do(nil); err == nil {
		t.Fatal("user tokens should be rejected on device endpoints")
	}
}

func TestStaleDevicesMarkedOffline(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deviceId, err := admin.createDevice("TAB-001")
	if err != nil {
		t.Fatal(err)
	}

	device, err := env.deviceClient(admin, deviceId)
	if err != nil {
		t.Fatal(err)
	}
	if err := device.Post("/device/sync").Json(map[string]interface{}{}).Do(nil); err != nil {
		t.Fatal(err)
	}

	if err := services.MarkStaleDevicesOffline(env.db, time.Hour); err != nil {
		t.Fatal(err)
	}
	info, err := env.deviceById(admin, deviceId)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != schema.DeviceActive {
		t.Fatalf("recently synced device should stay active, got %v", info.Status)
	}

	if err := services.MarkStaleDevicesOffline(env.db, 0); err != nil {
		t.Fatal(err)
	}
	info, err = env.deviceById(admin, deviceId)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != schema.DeviceOffline {
		t.Fatalf("stale device should be marked offline, got %v", info.Status)
	}
}
