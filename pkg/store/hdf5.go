package store

import (
	"fmt"

	"github.com/jmbenlloch/go-hdf5"
)

const STRLEN = 20

type EventHDF5 struct {
	capture    uint64
	amplitudeA float64
	amplitudeB float64
	energyA    float64
	energyB    float64
	timeA      float64
	timeB      float64
	timeDiff   float64
	peaksA     int32
	peaksB     int32
	timeAOK    int8
	timeBOK    int8
	coincident int8
}

type RunInfoHDF5 struct {
	run_number int32
	run_id     [36]byte
	start      int64
	stop       int64
	captures   int64
	total      int64
	good       int64
	skipped    int64
	no_timing  int64
}

type ParamsHDF5 struct {
	paramStr [STRLEN]byte
	strValue [STRLEN]byte
	value    float64
}

func convertToHdf5String(s string) [STRLEN]byte {
	var byteArray [STRLEN]byte
	copy(byteArray[:], s)
	return byteArray
}

func convertUUID(s string) [36]byte {
	var byteArray [36]byte
	copy(byteArray[:], s)
	return byteArray
}

func boolToInt8(b bool) int8 {
	if b {
		return 1
	}
	return 0
}

func openFile(fname string) (*hdf5.File, error) {
	return hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
}

func createGroup(parent interface {
	CreateGroup(string) (*hdf5.Group, error)
}, groupName string) (*hdf5.Group, error) {
	g, err := parent.CreateGroup(groupName)
	if err != nil {
		return nil, &ErrCreateGroup{GroupName: groupName, Err: err}
	}
	return g, nil
}

func datasetCreationList(chunks []uint, compressionLevel int) (*hdf5.PropList, error) {
	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, err
	}
	if err := plist.SetChunk(chunks); err != nil {
		plist.Close()
		return nil, err
	}
	if compressionLevel > 0 {
		if err := plist.SetDeflate(compressionLevel); err != nil {
			plist.Close()
			return nil, err
		}
	}
	return plist, nil
}

// create2dArray makes an extendible float64 array with one row per event.
func create2dArray(group *hdf5.Group, name string, nSamples int, compressionLevel int) (*hdf5.Dataset, error) {
	dimsArray := []uint{0, uint(nSamples)}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDimsArray := []uint{uint(unlimitedDims), uint(nSamples)}
	chunks := []uint{1, uint(nSamples)}

	fileSpace, err := hdf5.CreateSimpleDataspace(dimsArray, maxDimsArray)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer fileSpace.Close()

	plist, err := datasetCreationList(chunks, compressionLevel)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer plist.Close()

	dset, err := group.CreateDatasetWith(name, hdf5.T_NATIVE_DOUBLE, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return dset, nil
}

// createTable makes an extendible one dimensional table of the compound
// type described by datatype.
func createTable(group *hdf5.Group, name string, datatype interface{}, compressionLevel int) (*hdf5.Dataset, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer fileSpace.Close()

	plist, err := datasetCreationList([]uint{32768}, compressionLevel)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer plist.Close()

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return dset, nil
}

func writeEntryToTable[T any](dataset *hdf5.Dataset, data T, evtCounter int) error {
	array := []T{data}
	return writeArrayToTable(dataset, &array, evtCounter)
}

func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T, evtCounter int) error {
	length := uint(len(*data))
	dims := []uint{length}
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	// extend
	eventsInFile := uint(evtCounter)
	newsize := []uint{eventsInFile + length}
	if err := dataset.Resize(newsize); err != nil {
		return err
	}
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{eventsInFile}
	count := []uint{length}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return err
	}
	return dataset.WriteSubset(data, dataspace, filespace)
}

func write2dArray(dataset *hdf5.Dataset, data *[]float64, evtCounter int, nSamples int) error {
	// extend
	newsize := []uint{uint(evtCounter) + 1, uint(nSamples)}
	if err := dataset.Resize(newsize); err != nil {
		return err
	}
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{uint(evtCounter), 0}
	count := []uint{1, uint(nSamples)}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return err
	}

	dataspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	return dataset.WriteSubset(data, dataspace, filespace)
}

// writeFixedArray stores a complete array of known shape in one go.
func writeFixedArray[T int64 | float64](group *hdf5.Group, name string, dims []uint, data []T) error {
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return &ErrCreateTable{TableName: name, Err: err}
	}
	defer space.Close()

	var zero T
	dtype, err := hdf5.NewDatatypeFromValue(zero)
	if err != nil {
		return &ErrCreateTable{TableName: name, Err: err}
	}
	dset, err := group.CreateDataset(name, dtype, space)
	if err != nil {
		return &ErrCreateTable{TableName: name, Err: err}
	}
	if err := dset.Write(&data); err != nil {
		dset.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return dset.Close()
}
