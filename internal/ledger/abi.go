package ledger

// readingsABI is the interface of the deployed readings contract.
const readingsABI = `[
  {"inputs": [], "stateMutability": "nonpayable", "type": "constructor"},
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "id", "type": "uint256"},
      {"indexed": false, "internalType": "string", "name": "sensorId", "type": "string"},
      {"indexed": false, "internalType": "string", "name": "location", "type": "string"},
      {"indexed": false, "internalType": "string", "name": "processStage", "type": "string"},
      {"indexed": false, "internalType": "uint256", "name": "timestamp", "type": "uint256"},
      {"indexed": false, "internalType": "int256", "name": "temperature", "type": "int256"},
      {"indexed": false, "internalType": "uint256", "name": "humidity", "type": "uint256"}
    ],
    "name": "NewReading",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "string", "name": "_sensorId", "type": "string"},
      {"internalType": "string", "name": "_location", "type": "string"},
      {"internalType": "string", "name": "_processStage", "type": "string"},
      {"internalType": "uint256", "name": "_timestamp", "type": "uint256"},
      {"internalType": "int256", "name": "_temperature", "type": "int256"},
      {"internalType": "uint256", "name": "_humidity", "type": "uint256"}
    ],
    "name": "addReading",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getReadingCount",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "owner",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "name": "sensorReadings",
    "outputs": [
      {"internalType": "string", "name": "sensorId", "type": "string"},
      {"internalType": "string", "name": "location", "type": "string"},
      {"internalType": "string", "name": "processStage", "type": "string"},
      {"internalType": "uint256", "name": "timestamp", "type": "uint256"},
      {"internalType": "int256", "name": "temperature", "type": "int256"},
      {"internalType": "uint256", "name": "humidity", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const (
	methodCount   = "getReadingCount"
	methodReading = "sensorReadings"
	methodOwner   = "owner"
	eventAppend   = "NewReading"
)
